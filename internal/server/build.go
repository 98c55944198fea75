package server

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/api"
	"github.com/JakeFAU/click-redirector/internal/broadcast"
	"github.com/JakeFAU/click-redirector/internal/config"
	"github.com/JakeFAU/click-redirector/internal/detector"
	"github.com/JakeFAU/click-redirector/internal/geo"
	"github.com/JakeFAU/click-redirector/internal/id/uuid"
	"github.com/JakeFAU/click-redirector/internal/ledger"
	"github.com/JakeFAU/click-redirector/internal/ledger/sinks"
	"github.com/JakeFAU/click-redirector/internal/logging"
	"github.com/JakeFAU/click-redirector/internal/metrics"
	"github.com/JakeFAU/click-redirector/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/click-redirector/internal/publisher/pubsub"
	"github.com/JakeFAU/click-redirector/internal/redirect"
	gcsstorage "github.com/JakeFAU/click-redirector/internal/storage/gcs"
	localstorage "github.com/JakeFAU/click-redirector/internal/storage/local"
	memorystorage "github.com/JakeFAU/click-redirector/internal/storage/memory"
	pgstore "github.com/JakeFAU/click-redirector/internal/storage/postgres"
	"github.com/JakeFAU/click-redirector/internal/store"
	"github.com/JakeFAU/click-redirector/internal/telemetry"
)

// stores groups the registry and ledger repositories of one backend.
type stores struct {
	links   store.LinkRegistry
	counter store.LinkCounter
	clicks  store.ClickRepository
	ready   api.Pinger
}

type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Build creates the application's dependencies. On failure everything opened
// so far is released.
func Build(ctx context.Context, cfg *config.Config) (app *App, err error) {
	logger, err := logging.Install(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	app.tracerShutdown, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return app, fmt.Errorf("tracer init failed: %w", err)
	}
	metrics.Init()

	app.logger.Info("building application dependencies")
	st, err := setupStores(ctx, app)
	if err != nil {
		return app, err
	}
	ready := map[string]api.Pinger{}
	if st.ready != nil {
		ready["postgres"] = st.ready
	}

	sinkList, err := setupSinks(ctx, app, st)
	if err != nil {
		return app, err
	}
	app.ledgerHub = ledger.NewHub(ledger.Config{
		BufferSize:     cfg.Ledger.BufferSize,
		MaxBatchEvents: cfg.Ledger.Batch.MaxEvents,
		MaxBatchWait:   cfg.Ledger.MaxBatchWait(),
		SinkTimeout:    cfg.Ledger.SinkTimeout(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         logger.Named("ledger"),
	}, sinkList...)
	app.logger.Info("click ledger initialized", zap.Int("sinks", len(sinkList)))

	live := setupBroadcast(app, ready)

	resolver, err := setupGeo(app)
	if err != nil {
		return app, err
	}

	svc, err := redirect.NewService(redirect.Dependencies{
		Links:    st.links,
		Crawlers: detector.NewCrawler(cfg.Redirect.CrawlerSignatures...),
		Geo:      resolver,
		Ledger:   app.ledgerHub,
		Live:     live,
		IDs:      uuid.NewUUIDGenerator(),
		Logger:   logger.Named("redirect"),
	}, redirect.Config{
		BlockedCountries: cfg.Redirect.BlockedCountries,
		SafeURL:          cfg.Redirect.SafeURL,
		StealthPath:      cfg.Redirect.StealthPath,
		VideoPath:        cfg.Redirect.VideoPath,
		VideoAssets:      cfg.Redirect.VideoAssets,
		StealthDelay:     cfg.Redirect.StealthDelay(),
		VideoCountdown:   cfg.Redirect.VideoCountdownSeconds,
	})
	if err != nil {
		return app, fmt.Errorf("redirect service init failed: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		app.logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	app.apiServer, err = api.NewServer(api.Options{
		Redirects:   svc,
		StealthPath: cfg.Redirect.StealthPath,
		VideoPath:   cfg.Redirect.VideoPath,
		Live: broadcast.NewHandler(app.liveHub, broadcast.HandlerConfig{
			PingInterval: cfg.Broadcast.PingInterval(),
			Logger:       logger.Named("broadcast"),
		}),
		Ready:    ready,
		Limiter:  limiter,
		VideoDir: cfg.Server.VideoDir,
		Logger:   logger.Named("api"),
	})
	if err != nil {
		return app, fmt.Errorf("api init failed: %w", err)
	}
	return app, nil
}

func setupStores(ctx context.Context, app *App) (stores, error) {
	cfg := app.cfg
	if cfg.Database.DSN == "" {
		app.logger.Warn("no database DSN configured, using in-memory link registry and click ledger")
		seed, err := cfg.SeedLinks()
		if err != nil && !errors.Is(err, config.ErrNoLinks) {
			return stores{}, err
		}
		links, err := memorystorage.NewLinkStore(seed...)
		if err != nil {
			return stores{}, fmt.Errorf("seed link registry: %w", err)
		}
		app.logger.Info("in-memory link registry seeded", zap.Int("links", len(seed)))
		return stores{links: links, counter: links, clicks: memorystorage.NewClickStore()}, nil
	}

	if cfg.Database.MigrateOnStart {
		if err := MigrateUp(cfg.Database.DSN, app.logger.Named("migrate")); err != nil {
			return stores{}, err
		}
	}
	pool, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return stores{}, fmt.Errorf("postgres init failed: %w", err)
	}
	app.onClose("postgres", func() error { pool.Close(); return nil })
	links, err := pgstore.NewLinkStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("link store init failed: %w", err)
	}
	clicks, err := pgstore.NewClickStore(pool)
	if err != nil {
		return stores{}, fmt.Errorf("click store init failed: %w", err)
	}
	app.logger.Info("postgres link registry and click ledger initialized")
	return stores{links: links, counter: links, clicks: clicks, ready: links}, nil
}

// MigrateUp applies pending schema migrations to dsn.
func MigrateUp(dsn string, logger *zap.Logger) error {
	m, err := pgstore.NewMigrator(dsn, logger)
	if err != nil {
		return fmt.Errorf("migrator init failed: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn("migrator close failed", zap.Error(cerr))
		}
	}()
	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func setupSinks(ctx context.Context, app *App, st stores) ([]ledger.Sink, error) {
	cfg := app.cfg
	sinkList := []ledger.Sink{sinks.NewStoreSink(st.clicks, st.counter, app.logger.Named("ledger_store"))}
	if cfg.Ledger.PrometheusEnabled {
		promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added ledger prometheus sink")
	}
	if cfg.Ledger.LogEnabled {
		sinkList = append(sinkList, sinks.NewLogSink(app.logger.Named("ledger_log")))
		app.logger.Debug("Added ledger log sink")
	}

	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		sinkList = append(sinkList, sinks.NewArchiveSink(blobs, cfg.Archive.Prefix))
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		pub := gcppublisher.New(client)
		app.onClose("pubsub", pub.Close)
		sinkList = append(sinkList, sinks.NewPubSubSink(pub, cfg.PubSub.TopicName))
		app.logger.Info("Pub/Sub click export initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
	}
	return sinkList, nil
}

func setupArchive(ctx context.Context, app *App) (sinks.BlobStore, error) {
	cfg := app.cfg.Archive
	switch cfg.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.onClose("gcs", blobs.Close)
		app.logger.Info("archiving clicks to GCS", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case config.ArchiveLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving clicks to local disk", zap.String("path", cfg.Local.BaseDir))
		return blobs, nil
	case config.ArchiveMemory:
		app.logger.Info("archiving clicks in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

// setupBroadcast builds the live hub. With Redis configured clicks travel
// through the relay so every instance's observers see them.
func setupBroadcast(app *App, ready map[string]api.Pinger) broadcast.Publisher {
	cfg := app.cfg.Broadcast
	logger := app.logger.Named("broadcast")
	app.liveHub = broadcast.NewHub(cfg.ClientBuffer, logger)
	if cfg.RedisAddr == "" {
		return app.liveHub
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	app.onClose("redis", client.Close)
	ready["redis"] = redisPinger{client: client}
	app.relay = broadcast.NewRedisRelay(client, cfg.RedisChannel, app.liveHub, logger)
	app.logger.Info("live traffic relayed through redis",
		zap.String("addr", cfg.RedisAddr),
		zap.String("channel", cfg.RedisChannel),
	)
	return app.relay
}

func setupGeo(app *App) (*geo.Resolver, error) {
	cfg := app.cfg.Geo
	var lookup geo.CountryLookup
	if cfg.DatabasePath != "" {
		mm, err := geo.OpenMaxMind(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("geo database init failed: %w", err)
		}
		app.onClose("geoip", mm.Close)
		lookup = mm
		app.logger.Info("geo database loaded", zap.String("path", cfg.DatabasePath))
	} else {
		app.logger.Warn("no geo database configured, every country resolves to " + geo.Unknown)
	}
	return geo.NewResolver(lookup, geo.Config{
		SubstituteLoopback: cfg.LoopbackSubstitution,
		LoopbackPool:       cfg.LoopbackPool,
		Logger:             app.logger.Named("geo"),
	}), nil
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/click-redirector/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080, ReadHeaderTimeoutSeconds: 1, ShutdownGraceSeconds: 1},
		Logging: config.LoggingConfig{Level: "error"},
		Redirect: config.RedirectConfig{
			BlockedCountries: []string{"ID"},
			SafeURL:          "https://safe.example/",
			StealthPath:      "/_meetups/r.php",
			VideoPath:        "/_video/landing",
		},
		Ledger: config.LedgerConfig{
			BufferSize:    16,
			Batch:         config.BatchConfig{MaxEvents: 10, MaxWaitMs: 10},
			SinkTimeoutMs: 1000,
		},
		Archive:   config.ArchiveConfig{Backend: config.ArchiveMemory, Prefix: "clicks"},
		Broadcast: config.BroadcastConfig{ClientBuffer: 8, PingIntervalSeconds: 54},
		Links: []config.LinkConfig{{
			Slug:      "abc123",
			TargetURL: "https://example.com/offer?x=1",
			TrackerID: "trk-1",
			Network:   "Meta",
		}},
	}
}

func TestBuildInMemory(t *testing.T) {
	app, err := Build(context.Background(), testConfig())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/abc123", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/_meetups/r.php", loc.Path)
	require.Equal(t, "trk-1", loc.Query().Get("click_id"))

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))
}

func TestBuildWithRedisRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Broadcast.RedisAddr = mr.Addr()
	cfg.Archive.Backend = config.ArchiveNone

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.relay)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")

	mr.SetError("ERR server unavailable")
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis")

	require.NoError(t, app.Close(context.Background()))
}

func TestBuildRejectsBadSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Links = append(cfg.Links, cfg.Links[0])

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

func TestBuildRejectsMissingGeoDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Geo.DatabasePath = t.TempDir() + "/missing.mmdb"

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "geo database")
}

package redirect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/broadcast"
	"github.com/JakeFAU/click-redirector/internal/codec"
	"github.com/JakeFAU/click-redirector/internal/detector"
	"github.com/JakeFAU/click-redirector/internal/geo"
	uuidgen "github.com/JakeFAU/click-redirector/internal/id/uuid"
	"github.com/JakeFAU/click-redirector/internal/ledger"
	"github.com/JakeFAU/click-redirector/internal/metrics"
	"github.com/JakeFAU/click-redirector/internal/pages"
	"github.com/JakeFAU/click-redirector/internal/store"
)

const tracerName = "github.com/JakeFAU/click-redirector/internal/redirect"

// Kind identifies how a visit was answered.
type Kind int

const (
	// KindRedirect sends the visitor down the stealth hop chain.
	KindRedirect Kind = iota
	// KindOpenGraph serves a preview document to a crawler.
	KindOpenGraph
	// KindGeoBlocked sends the visitor to the safe URL.
	KindGeoBlocked
)

func (k Kind) String() string {
	switch k {
	case KindRedirect:
		return "redirect"
	case KindOpenGraph:
		return "open_graph"
	case KindGeoBlocked:
		return "geo_blocked"
	default:
		return "unknown"
	}
}

// Visit is one inbound request for a short link.
type Visit struct {
	Slug      string
	UserAgent string
	ClientIP  string
	// Host is the request host, used for previews of links without a domain.
	Host string
}

// Outcome is the resolved answer for a Visit.
type Outcome struct {
	Kind Kind
	Link store.Link
	// Location is the redirect target for KindRedirect and KindGeoBlocked.
	Location string
	// OpenGraph is set for KindOpenGraph.
	OpenGraph pages.OpenGraph
	// Token and FinalURL are set for KindRedirect.
	Token    string
	FinalURL string
	Geo      geo.Location
}

// CrawlerClassifier reports whether a user agent belongs to a link-preview bot.
type CrawlerClassifier interface {
	IsCrawler(userAgent string) bool
}

// GeoResolver maps a client address to a country.
type GeoResolver interface {
	Resolve(addr string) geo.Location
}

// IDGenerator mints click IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Dependencies are the collaborators of a Service. Links and Geo are
// required; the rest fall back to defaults or are skipped when nil.
type Dependencies struct {
	Links    store.LinkRegistry
	Crawlers CrawlerClassifier
	Geo      GeoResolver
	Ledger   ledger.Recorder
	Live     broadcast.Publisher
	IDs      IDGenerator
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service builds redirect chains.
type Service struct {
	cfg      Config
	blocked  map[string]struct{}
	links    store.LinkRegistry
	crawlers CrawlerClassifier
	geo      GeoResolver
	ledger   ledger.Recorder
	live     broadcast.Publisher
	ids      IDGenerator
	logger   *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

// NewService validates cfg and wires deps.
func NewService(deps Dependencies, cfg Config) (*Service, error) {
	if deps.Links == nil {
		return nil, errors.New("redirect: link registry is required")
	}
	if deps.Geo == nil {
		return nil, errors.New("redirect: geo resolver is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("redirect: %w", err)
	}
	s := &Service{
		cfg:      cfg,
		blocked:  cfg.blockedSet(),
		links:    deps.Links,
		crawlers: deps.Crawlers,
		geo:      deps.Geo,
		ledger:   deps.Ledger,
		live:     deps.Live,
		ids:      deps.IDs,
		logger:   deps.Logger,
		now:      deps.Now,
		tracer:   otel.Tracer(tracerName),
	}
	if s.crawlers == nil {
		s.crawlers = detector.NewCrawler()
	}
	if s.ids == nil {
		s.ids = uuidgen.NewUUIDGenerator()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Resolve answers a visit. Errors wrap store.ErrNotFound for unknown slugs;
// anything else is an internal failure.
func (s *Service) Resolve(ctx context.Context, v Visit) (out Outcome, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "redirect.Resolve", trace.WithAttributes(attribute.String("link.slug", v.Slug)))
	defer func() {
		result := out.Kind.String()
		switch {
		case errors.Is(err, store.ErrNotFound):
			result = "not_found"
		case err != nil:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("redirect.outcome", result))
		span.End()
		metrics.ObserveRedirect(result, s.now().Sub(start))
	}()

	link, err := s.links.FindBySlug(ctx, v.Slug)
	if err != nil {
		return Outcome{}, fmt.Errorf("find link %q: %w", v.Slug, err)
	}
	out.Link = link

	ua := detector.NormalizeUserAgent(v.UserAgent)
	if link.OGImage != "" && s.crawlers.IsCrawler(ua) {
		out.Kind = KindOpenGraph
		out.OpenGraph = s.openGraph(link, v.Host)
		return out, nil
	}

	loc := s.geo.Resolve(v.ClientIP)
	out.Geo = loc
	if loc.Country == geo.Unknown {
		metrics.ObserveGeoResolution("unknown")
	} else {
		metrics.ObserveGeoResolution("resolved")
	}
	if _, blocked := s.blocked[loc.Country]; blocked {
		out.Kind = KindGeoBlocked
		out.Location = s.cfg.SafeURL
		return out, nil
	}

	now := s.now()
	platform := detector.Platform(ua)
	network := tokenNetwork(link.Network)
	token, err := codec.EncodeToken(codec.Fields{
		Year:     now.Year(),
		Country:  loc.Country,
		Address:  loc.Address,
		Platform: platform,
		Network:  network,
	}, link.Slug)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode click token: %w", err)
	}

	s.record(link, loc, ua, now)
	s.announce(link, loc, platform, network, now)

	final := ComposeFinalURL(link.TargetURL, token)
	hop := final
	if link.UseLandingPage {
		hop = VideoHopURL(s.cfg.VideoPath, final)
	}

	out.Kind = KindRedirect
	out.Token = token
	out.FinalURL = final
	out.Location = StealthURL(s.cfg.StealthPath, StealthParams{
		TrackerID: link.TrackerID,
		Country:   loc.Country,
		MaskedIP:  geo.MaskAddress(loc.Address),
		Network:   network,
	}, hop)
	return out, nil
}

func (s *Service) openGraph(link store.Link, host string) pages.OpenGraph {
	domain := link.Domain
	if domain == "" {
		domain = host
	}
	return pages.OpenGraph{
		URL:         "https://" + domain + "/" + link.Slug,
		Title:       link.OGTitle,
		Description: link.OGDescription,
		Image:       link.OGImage,
	}
}

// record hands the click to the ledger. The hub enqueues without blocking.
func (s *Service) record(link store.Link, loc geo.Location, ua string, now time.Time) {
	if s.ledger == nil {
		return
	}
	id, err := s.ids.NewRawID()
	if err != nil {
		s.logger.Warn("click id generation failed", zap.String("slug", link.Slug), zap.Error(err))
	} else {
		s.ledger.Append(store.Click{
			ID:        id,
			LinkID:    link.ID,
			IP:        loc.Address,
			Country:   loc.Country,
			UserAgent: truncate(ua, MaxUserAgentLength),
			CreatedAt: now,
		})
	}
	s.ledger.IncrementCount(link.ID, link.Slug)
}

func (s *Service) announce(link store.Link, loc geo.Location, platform, network string, now time.Time) {
	if s.live == nil {
		return
	}
	s.live.Publish(broadcast.Event{
		TrackerID: link.TrackerID,
		Country:   loc.Country,
		IP:        geo.MaskAddress(loc.Address),
		Platform:  platform,
		Network:   network,
		Timestamp: now,
	})
}

// StealthPage decodes the dest parameter of the stealth hop.
func (s *Service) StealthPage(dest string) (pages.Stealth, error) {
	target, err := codec.DecodeDestination(dest)
	if err != nil {
		return pages.Stealth{}, err
	}
	return pages.Stealth{Destination: target, Delay: s.cfg.StealthDelay}, nil
}

// VideoPage decodes the dest parameter of the video hop and picks its asset.
func (s *Service) VideoPage(dest string) (pages.Video, error) {
	target, err := codec.DecodeDestination(dest)
	if err != nil {
		return pages.Video{}, err
	}
	return pages.Video{
		Destination: target,
		Asset:       pages.SelectAsset(target, s.cfg.VideoAssets),
		Countdown:   s.cfg.VideoCountdown,
	}, nil
}

// tokenNetwork is the network tag shared by the token, the stealth hop and
// the live event.
func tokenNetwork(network string) string {
	network = strings.TrimSpace(network)
	if network == "" {
		return UnknownNetwork
	}
	return strings.ToUpper(network)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package redirect

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/click-redirector/internal/broadcast"
	"github.com/JakeFAU/click-redirector/internal/codec"
	"github.com/JakeFAU/click-redirector/internal/detector"
	"github.com/JakeFAU/click-redirector/internal/geo"
	"github.com/JakeFAU/click-redirector/internal/pages"
	"github.com/JakeFAU/click-redirector/internal/storage/memory"
	"github.com/JakeFAU/click-redirector/internal/store"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type fakeRecorder struct {
	mu         sync.Mutex
	clicks     []store.Click
	increments map[int64]int
}

func (r *fakeRecorder) Append(c store.Click) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, c)
}

func (r *fakeRecorder) IncrementCount(linkID int64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.increments == nil {
		r.increments = make(map[int64]int)
	}
	r.increments[linkID]++
}

func (r *fakeRecorder) snapshot() ([]store.Click, map[int64]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc := make(map[int64]int, len(r.increments))
	for k, v := range r.increments {
		inc[k] = v
	}
	return append([]store.Click(nil), r.clicks...), inc
}

type fakePublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *fakePublisher) Publish(evt broadcast.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type failingIDs struct{}

func (failingIDs) NewRawID() (uuid.UUID, error) {
	return uuid.Nil, errors.New("entropy exhausted")
}

type failingRegistry struct{}

func (failingRegistry) FindBySlug(context.Context, string) (store.Link, error) {
	return store.Link{}, errors.New("connection refused")
}

type fixture struct {
	svc      *Service
	links    *memory.LinkStore
	recorder *fakeRecorder
	live     *fakePublisher
}

func newFixture(t *testing.T, cfg Config, seed ...store.Link) fixture {
	t.Helper()
	links, err := memory.NewLinkStore(seed...)
	require.NoError(t, err)
	recorder := &fakeRecorder{}
	live := &fakePublisher{}
	resolver := geo.NewResolver(geo.StaticLookup{
		"8.8.8.8":     "us",
		"36.64.0.1":   "ID",
		"203.0.113.9": "GB",
	}, geo.Config{})
	svc, err := NewService(Dependencies{
		Links:    links,
		Crawlers: detector.NewCrawler(),
		Geo:      resolver,
		Ledger:   recorder,
		Live:     live,
		Now:      func() time.Time { return fixedNow },
	}, cfg)
	require.NoError(t, err)
	return fixture{svc: svc, links: links, recorder: recorder, live: live}
}

func offerLink() store.Link {
	return store.Link{
		Slug:      "abc123",
		TargetURL: "https://example.com/offer?x=1",
		Domain:    "go.example.net",
		TrackerID: "trk-42",
		Network:   "MetaAds",
		OGImage:   "https://cdn.example/og.png",
		OGTitle:   "Spring sale",
	}
}

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/124.0 Safari/537.36"

func stealthDest(t *testing.T, location string) (url.Values, string) {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, DefaultStealthPath, u.Path)
	q := u.Query()
	dest, err := codec.DecodeDestination(q.Get("dest"))
	require.NoError(t, err)
	return q, dest
}

func TestResolveRedirectsThroughStealthHop(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8:51234"})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)

	q, dest := stealthDest(t, out.Location)
	require.Equal(t, "trk-42", q.Get("click_id"))
	require.Equal(t, "us", q.Get("country_code"))
	require.Equal(t, "web", q.Get("user_agent"))
	require.Equal(t, "8.8.8.8***", q.Get("ip_address"))
	require.Equal(t, "metaads", q.Get("user_lp"))
	require.Equal(t, "https://example.com/offer?x=1&click_id="+out.Token, dest)
	require.Equal(t, dest, out.FinalURL)

	fields, err := codec.ParseToken(out.Token, "abc123")
	require.NoError(t, err)
	require.Equal(t, codec.Fields{Year: 2025, Country: "US", Address: "8.8.8.8", Platform: detector.PlatformWeb, Network: "METAADS"}, fields)

	clicks, increments := f.recorder.snapshot()
	require.Len(t, clicks, 1)
	require.Equal(t, out.Link.ID, clicks[0].LinkID)
	require.Equal(t, "8.8.8.8", clicks[0].IP)
	require.Equal(t, "US", clicks[0].Country)
	require.Equal(t, fixedNow, clicks[0].CreatedAt)
	require.NotEqual(t, uuid.Nil, clicks[0].ID)
	require.Equal(t, map[int64]int{out.Link.ID: 1}, increments)

	require.Equal(t, 1, f.live.count())
	evt := f.live.events[0]
	require.Equal(t, "trk-42", evt.TrackerID)
	require.Equal(t, "US", evt.Country)
	require.Equal(t, "8.8.8.8***", evt.IP)
	require.Equal(t, fields.Network, evt.Network)
	require.Equal(t, detector.PlatformWeb, evt.Platform)
}

func TestResolveUnknownSlug(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	_, err := f.svc.Resolve(context.Background(), Visit{Slug: "nope", UserAgent: browserUA, ClientIP: "8.8.8.8"})
	require.ErrorIs(t, err, store.ErrNotFound)

	clicks, increments := f.recorder.snapshot()
	require.Empty(t, clicks)
	require.Empty(t, increments)
	require.Zero(t, f.live.count())
}

func TestResolveRegistryFailure(t *testing.T) {
	svc, err := NewService(Dependencies{
		Links: failingRegistry{},
		Geo:   geo.NewResolver(nil, geo.Config{}),
	}, Config{})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), Visit{Slug: "abc123"})
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
}

func TestResolveCrawlerGetsOpenGraph(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{
		Slug:      "abc123",
		UserAgent: "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
		ClientIP:  "8.8.8.8",
		Host:      "ignored.example",
	})
	require.NoError(t, err)
	require.Equal(t, KindOpenGraph, out.Kind)
	require.Equal(t, pages.OpenGraph{
		URL:   "https://go.example.net/abc123",
		Title: "Spring sale",
		Image: "https://cdn.example/og.png",
	}, out.OpenGraph)

	clicks, increments := f.recorder.snapshot()
	require.Empty(t, clicks)
	require.Empty(t, increments)
	require.Zero(t, f.live.count())
}

func TestResolveCrawlerPreviewUsesRequestHost(t *testing.T) {
	link := offerLink()
	link.Domain = ""
	f := newFixture(t, Config{}, link)

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: "Twitterbot/1.0", Host: "short.example"})
	require.NoError(t, err)
	require.Equal(t, "https://short.example/abc123", out.OpenGraph.URL)
}

func TestResolveCrawlerWithoutImageIsRedirected(t *testing.T) {
	link := offerLink()
	link.OGImage = ""
	f := newFixture(t, Config{}, link)

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: "Twitterbot/1.0", ClientIP: "8.8.8.8"})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	require.Equal(t, 1, f.live.count())
}

func TestResolveGeoBlocked(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "36.64.0.1"})
	require.NoError(t, err)
	require.Equal(t, KindGeoBlocked, out.Kind)
	require.Equal(t, DefaultSafeURL, out.Location)
	require.Empty(t, out.Token)

	clicks, increments := f.recorder.snapshot()
	require.Empty(t, clicks)
	require.Empty(t, increments)
	require.Zero(t, f.live.count())
}

func TestResolveCustomGeoGate(t *testing.T) {
	f := newFixture(t, Config{BlockedCountries: []string{"gb"}, SafeURL: "https://safe.example/"}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "203.0.113.9"})
	require.NoError(t, err)
	require.Equal(t, KindGeoBlocked, out.Kind)
	require.Equal(t, "https://safe.example/", out.Location)

	out, err = f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "36.64.0.1"})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
}

func TestResolveDisabledGeoGate(t *testing.T) {
	f := newFixture(t, Config{BlockedCountries: []string{}}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "36.64.0.1"})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
}

func TestResolveLandingPageAddsVideoHop(t *testing.T) {
	link := offerLink()
	link.UseLandingPage = true
	f := newFixture(t, Config{}, link)

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8"})
	require.NoError(t, err)

	_, hop := stealthDest(t, out.Location)
	u, err := url.Parse(hop)
	require.NoError(t, err)
	require.Equal(t, DefaultVideoPath, u.Path)

	video, err := f.svc.VideoPage(u.Query().Get("dest"))
	require.NoError(t, err)
	require.Equal(t, out.FinalURL, video.Destination)
	require.Contains(t, DefaultVideoAssets, video.Asset)
	require.Equal(t, DefaultVideoCountdown, video.Countdown)
}

func TestResolvePlaceholderTarget(t *testing.T) {
	link := offerLink()
	link.TargetURL = "https://track.example/c?sub1={click_id}&src=fb"
	f := newFixture(t, Config{}, link)

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8"})
	require.NoError(t, err)
	require.Equal(t, "https://track.example/c?sub1="+out.Token+"&src=fb", out.FinalURL)
}

func TestResolveDefaultsForMissingInputs(t *testing.T) {
	link := offerLink()
	link.Network = ""
	f := newFixture(t, Config{}, link)

	out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123"})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)

	fields, err := codec.ParseToken(out.Token, "abc123")
	require.NoError(t, err)
	require.Equal(t, geo.Unknown, fields.Country)
	require.Equal(t, "127.0.0.1", fields.Address)
	require.Equal(t, UnknownNetwork, fields.Network)

	q, _ := stealthDest(t, out.Location)
	require.Equal(t, "unknown", q.Get("user_lp"))
	require.Equal(t, 1, f.live.count())
	require.Equal(t, UnknownNetwork, f.live.events[0].Network)

	clicks, _ := f.recorder.snapshot()
	require.Len(t, clicks, 1)
	require.Equal(t, detector.UnknownUserAgent, clicks[0].UserAgent)
}

func TestResolveNetworkMatchesAcrossOutputs(t *testing.T) {
	for _, network := range []string{"META NET", "", "  propeller "} {
		link := offerLink()
		link.Network = network
		f := newFixture(t, Config{}, link)

		out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8"})
		require.NoError(t, err)

		fields, err := codec.ParseToken(out.Token, "abc123")
		require.NoError(t, err)
		q, _ := stealthDest(t, out.Location)
		require.Equal(t, 1, f.live.count())
		require.Equal(t, fields.Network, f.live.events[0].Network, "network %q", network)
		require.Equal(t, strings.ToLower(fields.Network), q.Get("user_lp"), "network %q", network)
	}
}

func TestResolveMobilePlatform(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	out, err := f.svc.Resolve(context.Background(), Visit{
		Slug:      "abc123",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) Mobile/15E148",
		ClientIP:  "8.8.8.8",
	})
	require.NoError(t, err)
	fields, err := codec.ParseToken(out.Token, "abc123")
	require.NoError(t, err)
	require.Equal(t, detector.PlatformMobile, fields.Platform)
}

func TestResolveTruncatesStoredUserAgent(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	long := browserUA + strings.Repeat("x", 1000)
	_, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: long, ClientIP: "8.8.8.8"})
	require.NoError(t, err)

	clicks, _ := f.recorder.snapshot()
	require.Len(t, clicks, 1)
	require.Len(t, clicks[0].UserAgent, MaxUserAgentLength)
	require.True(t, strings.HasPrefix(long, clicks[0].UserAgent))
}

func TestResolveIDFailureStillCounts(t *testing.T) {
	links, err := memory.NewLinkStore(offerLink())
	require.NoError(t, err)
	recorder := &fakeRecorder{}
	svc, err := NewService(Dependencies{
		Links:  links,
		Geo:    geo.NewResolver(nil, geo.Config{}),
		Ledger: recorder,
		IDs:    failingIDs{},
	}, Config{})
	require.NoError(t, err)

	out, err := svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA})
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)

	clicks, increments := recorder.snapshot()
	require.Empty(t, clicks)
	require.Equal(t, 1, increments[out.Link.ID])
}

func TestResolveConcurrentClicks(t *testing.T) {
	f := newFixture(t, Config{}, offerLink())

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8"})
			if err == nil && out.Kind != KindRedirect {
				err = errors.New("unexpected outcome " + out.Kind.String())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	clicks, increments := f.recorder.snapshot()
	require.Len(t, clicks, n)
	require.Equal(t, n, increments[clicks[0].LinkID])
	require.Equal(t, n, f.live.count())

	ids := make(map[uuid.UUID]struct{}, n)
	for _, c := range clicks {
		ids[c.ID] = struct{}{}
	}
	require.Len(t, ids, n)
}

func TestResolveBroadcastsToLiveObserver(t *testing.T) {
	links, err := memory.NewLinkStore(offerLink())
	require.NoError(t, err)
	hub := broadcast.NewHub(8, nil)
	defer hub.Close()
	sub := hub.Subscribe()

	svc, err := NewService(Dependencies{
		Links: links,
		Geo:   geo.NewResolver(geo.StaticLookup{"8.8.8.8": "US"}, geo.Config{}),
		Live:  hub,
	}, Config{})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: "Slackbot 1.0", ClientIP: "8.8.8.8"})
	require.NoError(t, err)
	_, err = svc.Resolve(context.Background(), Visit{Slug: "abc123", UserAgent: browserUA, ClientIP: "8.8.8.8"})
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		evt, err := broadcast.DecodeEvent(msg)
		require.NoError(t, err)
		require.Equal(t, "trk-42", evt.TrackerID)
	case <-time.After(time.Second):
		t.Fatal("no live event")
	}
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected second event %s", msg)
	default:
	}
}

func TestStealthPage(t *testing.T) {
	f := newFixture(t, Config{StealthDelay: 250 * time.Millisecond})

	page, err := f.svc.StealthPage(codec.EncodeDestination("https://example.com/offer"))
	require.NoError(t, err)
	require.Equal(t, pages.Stealth{Destination: "https://example.com/offer", Delay: 250 * time.Millisecond}, page)

	_, err = f.svc.StealthPage(codec.EncodeDestination("javascript:alert(1)"))
	require.ErrorIs(t, err, codec.ErrMalformedDestination)

	_, err = f.svc.StealthPage("")
	require.ErrorIs(t, err, codec.ErrMalformedDestination)
}

func TestStealthPageHonorsZeroDelay(t *testing.T) {
	for _, delay := range []time.Duration{0, -time.Second} {
		f := newFixture(t, Config{StealthDelay: delay})
		page, err := f.svc.StealthPage(codec.EncodeDestination("https://example.com/offer"))
		require.NoError(t, err)
		require.Zero(t, page.Delay, "configured delay %v", delay)
	}
}

func TestNewServiceValidation(t *testing.T) {
	resolver := geo.NewResolver(nil, geo.Config{})
	links, err := memory.NewLinkStore()
	require.NoError(t, err)

	_, err = NewService(Dependencies{Geo: resolver}, Config{})
	require.Error(t, err)
	_, err = NewService(Dependencies{Links: links}, Config{})
	require.Error(t, err)
	_, err = NewService(Dependencies{Links: links, Geo: resolver}, Config{SafeURL: "/relative"})
	require.Error(t, err)
	_, err = NewService(Dependencies{Links: links, Geo: resolver}, Config{StealthPath: "/hop", VideoPath: "/hop"})
	require.Error(t, err)
	_, err = NewService(Dependencies{Links: links, Geo: resolver}, Config{VideoPath: "video"})
	require.Error(t, err)

	svc, err := NewService(Dependencies{Links: links, Geo: resolver}, Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultStealthPath, svc.Config().StealthPath)
	require.Equal(t, DefaultBlockedCountries, svc.Config().BlockedCountries)
}

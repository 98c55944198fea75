package pages

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderOpenGraph(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderOpenGraph(&buf, OpenGraph{
		URL:         "https://go.example/abc123",
		Title:       `Deals "today" <only>`,
		Description: "Half off",
		Image:       "https://cdn.example/og.png",
	}))
	body := buf.String()
	require.Contains(t, body, `<meta property="og:url" content="https://go.example/abc123">`)
	require.Contains(t, body, `<meta property="og:title" content="Deals &#34;today&#34; &lt;only&gt;">`)
	require.Contains(t, body, `<meta property="og:description" content="Half off">`)
	require.Contains(t, body, `<meta property="og:image" content="https://cdn.example/og.png">`)
	require.Contains(t, body, `<meta property="og:image:width" content="1200">`)
	require.Contains(t, body, `<meta property="og:image:height" content="630">`)
	require.Contains(t, body, `<meta name="twitter:card" content="summary_large_image">`)
	require.Contains(t, body, `<meta name="twitter:image" content="https://cdn.example/og.png">`)
	require.Contains(t, body, "Redirecting...")
	require.NotContains(t, body, "<only>")
}

func TestRenderOpenGraphFallbacks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderOpenGraph(&buf, OpenGraph{Image: "https://cdn.example/og.png"}))
	body := buf.String()
	require.Contains(t, body, `<meta property="og:title" content="Check this out!">`)
	require.Contains(t, body, `<meta property="og:description" content="Click to see more!">`)
	require.Contains(t, body, `<meta name="twitter:title" content="Check this out!">`)
}

func TestRenderStealth(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderStealth(&buf, Stealth{
		Destination: "https://example.com/offer?x=1&click_id=abc",
		Delay:       100 * time.Millisecond,
	}))
	body := buf.String()
	require.Contains(t, body, "<title>Redirecting...</title>")
	require.Contains(t, body, "Secure Redirect...")
	require.Contains(t, body, `<meta name="referrer" content="no-referrer">`)
	require.Contains(t, body, `href="https://example.com/offer?x=1&amp;click_id=abc"`)
	require.Contains(t, body, "window.location.replace(")
	require.Contains(t, body, "100")
}

func TestRenderStealthNeutralizesScriptDestinations(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderStealth(&buf, Stealth{Destination: `javascript:alert(1)`}))
	body := buf.String()
	require.NotContains(t, body, `href="javascript:`)
}

func TestRenderVideo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderVideo(&buf, Video{
		Destination: "https://example.com/offer?click_id=abc",
		Asset:       "/videos/video2.mp4",
		Countdown:   3,
	}))
	body := buf.String()
	require.Contains(t, body, `<video src="/videos/video2.mp4"`)
	require.Contains(t, body, `<div id="countdown">3</div>`)
	require.Contains(t, body, `href="https://example.com/offer?click_id=abc"`)
	require.Contains(t, body, `addEventListener("click", go)`)
}

func TestRenderVideoClampsCountdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderVideo(&buf, Video{Destination: "/x", Asset: "/v.mp4"}))
	require.Contains(t, buf.String(), `<div id="countdown">1</div>`)
}

func TestRenderErrorHidesDetail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		title  string
	}{
		{http.StatusNotFound, "Not Found"},
		{http.StatusBadRequest, "Bad Request"},
		{http.StatusInternalServerError, "Internal Server Error"},
		{http.StatusTooManyRequests, "Too Many Requests"},
		{599, "Error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		require.NoError(t, RenderError(&buf, tt.status))
		require.Contains(t, buf.String(), "<h1>"+tt.title+"</h1>")
	}
}

func TestSelectAssetDeterministic(t *testing.T) {
	t.Parallel()

	assets := []string{"/videos/video1.mp4", "/videos/video2.mp4"}
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		dest := "https://example.com/offer?click_id=" + strings.Repeat("a", i)
		first := SelectAsset(dest, assets)
		require.Equal(t, first, SelectAsset(dest, assets))
		seen[first] = true
	}
	require.Len(t, seen, 2)
	require.Empty(t, SelectAsset("x", nil))
	require.Equal(t, "/only.mp4", SelectAsset("x", []string{"/only.mp4"}))
}

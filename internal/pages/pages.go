// Package pages renders the HTML documents served along the redirect chain.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"hash/fnv"
	"html/template"
	"io"
	"net/http"
	"time"
)

// Fallback preview text for links without their own metadata.
const (
	DefaultTitle       = "Check this out!"
	DefaultDescription = "Click to see more!"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// OpenGraph is the social preview document served to crawlers.
type OpenGraph struct {
	URL         string
	Title       string
	Description string
	Image       string
}

// Stealth is the referrer-stripping hop.
type Stealth struct {
	Destination string
	Delay       time.Duration
}

// Video is the interstitial hop.
type Video struct {
	Destination string
	Asset       string
	// Countdown is in whole seconds.
	Countdown int
}

// RenderOpenGraph writes the preview document, filling in fallback text.
func RenderOpenGraph(w io.Writer, og OpenGraph) error {
	if og.Title == "" {
		og.Title = DefaultTitle
	}
	if og.Description == "" {
		og.Description = DefaultDescription
	}
	return render(w, "og", og)
}

// RenderStealth writes the auto-navigating intermediate page.
func RenderStealth(w io.Writer, s Stealth) error {
	if s.Delay < 0 {
		s.Delay = 0
	}
	return render(w, "stealth", struct {
		Destination string
		DelayMillis int64
	}{
		Destination: s.Destination,
		DelayMillis: s.Delay.Milliseconds(),
	})
}

// RenderVideo writes the video interstitial.
func RenderVideo(w io.Writer, v Video) error {
	if v.Countdown < 1 {
		v.Countdown = 1
	}
	return render(w, "video", v)
}

// RenderError writes a generic error page for status. It never includes
// internal error detail.
func RenderError(w io.Writer, status int) error {
	title := http.StatusText(status)
	if title == "" {
		title = "Error"
	}
	message := "Something went wrong. Please try again later."
	switch status {
	case http.StatusNotFound:
		message = "This link does not exist."
	case http.StatusBadRequest:
		message = "This link is invalid."
	case http.StatusTooManyRequests:
		message = "Too many requests. Please slow down."
	}
	return render(w, "error", struct {
		Title   string
		Message string
	}{Title: title, Message: message})
}

// SelectAsset deterministically picks one asset for dest using FNV-1a.
func SelectAsset(dest string, assets []string) string {
	if len(assets) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(dest))
	return assets[h.Sum32()%uint32(len(assets))]
}

func render(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s page: %w", name, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write %s page: %w", name, err)
	}
	return nil
}

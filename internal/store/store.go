// Package store declares the link and click records shared by the redirect
// pipeline and its persistence backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Link is one shortened tracking destination.
type Link struct {
	// ID is the storage primary key.
	ID int64
	// Slug is the unique path segment; it is never reused.
	Slug string
	// TargetURL is the offer URL template and may contain the {click_id} placeholder.
	TargetURL string
	// Domain is the display host used for social previews.
	Domain string
	// TrackerID references the owning tracker or campaign.
	TrackerID string
	// Network is the free-text advertising network name.
	Network string
	// UseLandingPage enables the video interstitial hop.
	UseLandingPage bool
	OGImage        string
	OGTitle        string
	OGDescription  string
	// ClickCount is a best-effort cache; the click ledger is authoritative.
	ClickCount int64
	CreatedAt  time.Time
}

// Click is one resolved visit to a Link. Rows are append-only.
type Click struct {
	ID        uuid.UUID
	LinkID    int64
	IP        string
	Country   string
	UserAgent string
	CreatedAt time.Time
}

// LinkRegistry resolves short links by slug.
type LinkRegistry interface {
	// FindBySlug returns the link or ErrNotFound. It has no side effects.
	FindBySlug(ctx context.Context, slug string) (Link, error)
}

// ClickRepository appends click rows.
type ClickRepository interface {
	AppendClicks(ctx context.Context, clicks []Click) error
}

// LinkCounter applies increments to the denormalized click counter.
type LinkCounter interface {
	IncrementClickCount(ctx context.Context, linkID int64, delta int64) error
}

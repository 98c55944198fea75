package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/click-redirector/internal/store"
)

const findLinkBySlugSQL = `
SELECT
	id,
	slug,
	target_url,
	COALESCE(domain, ''),
	COALESCE(tracker_id, ''),
	COALESCE(network, ''),
	use_landing_page,
	COALESCE(og_image, ''),
	COALESCE(og_title, ''),
	COALESCE(og_description, ''),
	click_count,
	created_at
FROM links
WHERE slug = $1`

const incrementClickCountSQL = `UPDATE links SET click_count = click_count + $1 WHERE id = $2`

// LinkStore implements store.LinkRegistry and store.LinkCounter.
type LinkStore struct {
	db Querier
}

// NewLinkStore wraps an open pool.
func NewLinkStore(db Querier) (*LinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LinkStore{db: db}, nil
}

// FindBySlug returns the link for slug or store.ErrNotFound.
func (s *LinkStore) FindBySlug(ctx context.Context, slug string) (store.Link, error) {
	var link store.Link
	err := s.db.QueryRow(ctx, findLinkBySlugSQL, slug).Scan(
		&link.ID,
		&link.Slug,
		&link.TargetURL,
		&link.Domain,
		&link.TrackerID,
		&link.Network,
		&link.UseLandingPage,
		&link.OGImage,
		&link.OGTitle,
		&link.OGDescription,
		&link.ClickCount,
		&link.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Link{}, fmt.Errorf("link %q: %w", slug, store.ErrNotFound)
	}
	if err != nil {
		return store.Link{}, fmt.Errorf("find link by slug: %w", err)
	}
	return link, nil
}

// IncrementClickCount adds delta to the link's counter in a single statement.
func (s *LinkStore) IncrementClickCount(ctx context.Context, linkID int64, delta int64) error {
	tag, err := s.db.Exec(ctx, incrementClickCountSQL, delta, linkID)
	if err != nil {
		return fmt.Errorf("increment click count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link id %d: %w", linkID, store.ErrNotFound)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *LinkStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

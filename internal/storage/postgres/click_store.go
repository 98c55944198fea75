package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/click-redirector/internal/store"
)

var (
	clicksTable   = pgx.Identifier{"clicks"}
	clicksColumns = []string{"id", "link_id", "ip", "country", "user_agent", "created_at"}
)

// ClickStore implements store.ClickRepository with COPY.
type ClickStore struct {
	db Querier
}

// NewClickStore wraps an open pool.
func NewClickStore(db Querier) (*ClickStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ClickStore{db: db}, nil
}

// AppendClicks copies clicks into the clicks table.
func (s *ClickStore) AppendClicks(ctx context.Context, clicks []store.Click) error {
	if len(clicks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(clicks))
	for _, c := range clicks {
		rows = append(rows, []any{c.ID, c.LinkID, c.IP, c.Country, c.UserAgent, c.CreatedAt})
	}
	n, err := s.db.CopyFrom(ctx, clicksTable, clicksColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy clicks: %w", err)
	}
	if n != int64(len(clicks)) {
		return fmt.Errorf("copy clicks: wrote %d of %d rows", n, len(clicks))
	}
	return nil
}

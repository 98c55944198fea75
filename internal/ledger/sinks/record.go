package sinks

import (
	"time"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// ClickRecord is the exported JSON shape of one click row.
type ClickRecord struct {
	ID        string    `json:"id"`
	LinkID    int64     `json:"link_id"`
	IP        string    `json:"ip"`
	Country   string    `json:"country"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

func newClickRecord(c store.Click) ClickRecord {
	return ClickRecord{
		ID:        c.ID.String(),
		LinkID:    c.LinkID,
		IP:        c.IP,
		Country:   c.Country,
		UserAgent: c.UserAgent,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// ClickStore is an append-only in-memory click ledger.
type ClickStore struct {
	mu     sync.RWMutex
	clicks []store.Click
}

// NewClickStore creates an empty ClickStore.
func NewClickStore() *ClickStore {
	return &ClickStore{}
}

// AppendClicks implements store.ClickRepository.
func (s *ClickStore) AppendClicks(_ context.Context, clicks []store.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, clicks...)
	return nil
}

// Clicks returns a copy of every recorded click.
func (s *ClickStore) Clicks() []store.Click {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Click(nil), s.clicks...)
}

// CountForLink reports how many clicks reference linkID.
func (s *ClickStore) CountForLink(linkID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.clicks {
		if c.LinkID == linkID {
			n++
		}
	}
	return n
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// LinkStore is an in-memory link registry with an atomic click counter.
type LinkStore struct {
	mu     sync.RWMutex
	bySlug map[string]*store.Link
	byID   map[int64]*store.Link
	nextID int64
}

// NewLinkStore creates a LinkStore seeded with links. Links without an ID are
// numbered in order; duplicate or empty slugs are rejected.
func NewLinkStore(seed ...store.Link) (*LinkStore, error) {
	s := &LinkStore{
		bySlug: make(map[string]*store.Link),
		byID:   make(map[int64]*store.Link),
	}
	for _, link := range seed {
		if _, err := s.Add(link); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers a link and returns it with its assigned ID.
func (s *LinkStore) Add(link store.Link) (store.Link, error) {
	link.Slug = strings.TrimSpace(link.Slug)
	if link.Slug == "" {
		return store.Link{}, fmt.Errorf("slug is required")
	}
	if link.TargetURL == "" {
		return store.Link{}, fmt.Errorf("link %q: target url is required", link.Slug)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySlug[link.Slug]; exists {
		return store.Link{}, fmt.Errorf("link %q already exists", link.Slug)
	}
	if link.ID == 0 {
		s.nextID++
		link.ID = s.nextID
	} else if link.ID > s.nextID {
		s.nextID = link.ID
	}
	if _, exists := s.byID[link.ID]; exists {
		return store.Link{}, fmt.Errorf("link id %d already exists", link.ID)
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	stored := link
	s.bySlug[link.Slug] = &stored
	s.byID[link.ID] = &stored
	return stored, nil
}

// FindBySlug implements store.LinkRegistry.
func (s *LinkStore) FindBySlug(_ context.Context, slug string) (store.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.bySlug[slug]
	if !ok {
		return store.Link{}, fmt.Errorf("link %q: %w", slug, store.ErrNotFound)
	}
	return *link, nil
}

// IncrementClickCount implements store.LinkCounter.
func (s *LinkStore) IncrementClickCount(_ context.Context, linkID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.byID[linkID]
	if !ok {
		return fmt.Errorf("link id %d: %w", linkID, store.ErrNotFound)
	}
	link.ClickCount += delta
	return nil
}

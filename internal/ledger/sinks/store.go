package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/ledger"
	"github.com/JakeFAU/click-redirector/internal/store"
)

// StoreSink persists click rows and collapses counter increments per link
// before writing them. The two writes are independent: a failed append does
// not prevent the increment and vice versa.
type StoreSink struct {
	clicks  store.ClickRepository
	counter store.LinkCounter
	logger  *zap.Logger
}

// NewStoreSink constructs a StoreSink. Either repository may be nil.
func NewStoreSink(clicks store.ClickRepository, counter store.LinkCounter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{clicks: clicks, counter: counter, logger: logger}
}

// Consume writes the batch's clicks in one call, then applies one increment per link.
func (s *StoreSink) Consume(ctx context.Context, batch []ledger.Event) error {
	if s == nil {
		return nil
	}
	var clicks []store.Click
	deltas := make(map[int64]int64)
	order := make([]int64, 0)
	for _, evt := range batch {
		switch evt.Kind {
		case ledger.KindClick:
			clicks = append(clicks, evt.Click)
		case ledger.KindCount:
			if _, ok := deltas[evt.LinkID]; !ok {
				order = append(order, evt.LinkID)
			}
			deltas[evt.LinkID]++
		}
	}

	var errs []error
	if s.clicks != nil && len(clicks) > 0 {
		if err := s.clicks.AppendClicks(ctx, clicks); err != nil {
			s.logger.Warn("append clicks failed", zap.Int("clicks", len(clicks)), zap.Error(err))
			errs = append(errs, fmt.Errorf("append clicks: %w", err))
		}
	}
	if s.counter != nil {
		for _, linkID := range order {
			if err := s.counter.IncrementClickCount(ctx, linkID, deltas[linkID]); err != nil {
				s.logger.Warn("increment click count failed",
					zap.Int64("link_id", linkID),
					zap.Int64("delta", deltas[linkID]),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("increment click count for link %d: %w", linkID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

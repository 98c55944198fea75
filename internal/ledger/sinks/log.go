package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/geo"
	"github.com/JakeFAU/click-redirector/internal/ledger"
)

// LogSink emits one structured log line per ledger operation. Addresses are
// masked.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []ledger.Event) error {
	for _, evt := range batch {
		switch evt.Kind {
		case ledger.KindClick:
			s.logger.Info("click recorded",
				zap.String("click_id", evt.Click.ID.String()),
				zap.Int64("link_id", evt.Click.LinkID),
				zap.String("country", evt.Click.Country),
				zap.String("ip", geo.MaskAddress(evt.Click.IP)),
				zap.Time("at", evt.Click.CreatedAt),
			)
		case ledger.KindCount:
			s.logger.Debug("click count increment",
				zap.Int64("link_id", evt.LinkID),
				zap.String("slug", evt.Slug),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

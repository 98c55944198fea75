package ledger

import (
	"context"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// Sink consumes batches of ledger events. Implementations must honor ctx
// deadlines and tolerate repeated Consume calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Recorder is the fire-and-forget surface the redirect pipeline depends on.
// Hub satisfies it.
type Recorder interface {
	Append(click store.Click)
	IncrementCount(linkID int64, slug string)
}

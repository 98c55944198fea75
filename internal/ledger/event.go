package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/click-redirector/internal/store"
)

// Kind identifies which ledger operation an Event carries.
type Kind string

// Supported ledger operations.
const (
	KindClick Kind = "CLICK"
	KindCount Kind = "COUNT"
)

// Event is one buffered ledger operation.
type Event struct {
	Kind Kind
	// TS is when the operation was handed to the hub.
	TS time.Time
	// Click is set for KindClick.
	Click store.Click
	// LinkID and Slug scope KindCount increments. Slug is informational.
	LinkID int64
	Slug   string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindClick:
		if e.Click.LinkID == 0 {
			return errors.New("click requires link id")
		}
		if e.Click.CreatedAt.IsZero() {
			return errors.New("click requires created at")
		}
	case KindCount:
		if e.LinkID == 0 {
			return errors.New("count requires link id")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/click-redirector/internal/ledger"
)

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PubSubSink exports one message per click.
type PubSubSink struct {
	publisher Publisher
	topic     string
}

// NewPubSubSink constructs a PubSubSink for topic.
func NewPubSubSink(publisher Publisher, topic string) *PubSubSink {
	return &PubSubSink{publisher: publisher, topic: topic}
}

// Consume publishes each click in the batch and keeps going past failures.
func (s *PubSubSink) Consume(ctx context.Context, batch []ledger.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Kind != ledger.KindClick {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, newClickRecord(evt.Click)); err != nil {
			errs = append(errs, fmt.Errorf("publish click %s: %w", evt.Click.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PubSubSink) Close(context.Context) error {
	return nil
}

package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageTypeClick tags click envelopes on the wire.
const MessageTypeClick = "click"

// Event describes one resolved click. IP is always the masked form.
type Event struct {
	TrackerID string
	Country   string
	IP        string
	Platform  string
	Network   string
	Timestamp time.Time
}

type eventPayload struct {
	TrackerID string `json:"trackerId"`
	Country   string `json:"country"`
	IP        string `json:"ip"`
	Platform  string `json:"platform"`
	Network   string `json:"network"`
	Timestamp string `json:"timestamp"`
}

// Envelope is the JSON frame pushed to observers.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode renders the click envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(eventPayload{
		TrackerID: e.TrackerID,
		Country:   e.Country,
		IP:        e.IP,
		Platform:  e.Platform,
		Network:   e.Network,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal click event: %w", err)
	}
	msg, err := json.Marshal(Envelope{Type: MessageTypeClick, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return msg, nil
}

// DecodeEvent parses a click envelope produced by Encode.
func DecodeEvent(msg []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != MessageTypeClick {
		return Event{}, fmt.Errorf("unexpected message type %q", env.Type)
	}
	var p eventPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal click event: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return Event{
		TrackerID: p.TrackerID,
		Country:   p.Country,
		IP:        p.IP,
		Platform:  p.Platform,
		Network:   p.Network,
		Timestamp: ts,
	}, nil
}

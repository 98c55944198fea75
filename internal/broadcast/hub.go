package broadcast

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/metrics"
)

const defaultClientBuffer = 64

// Publisher is the fire-and-forget surface the redirect pipeline uses.
// Hub and RedisRelay satisfy it.
type Publisher interface {
	Publish(evt Event)
}

// Subscription is one observer's handle on the hub.
type Subscription struct {
	id      uint64
	ch      chan []byte
	once    sync.Once
	dropped atomic.Int64
}

// Messages yields encoded envelopes. It is closed on Unsubscribe or hub Close.
func (s *Subscription) Messages() <-chan []byte {
	return s.ch
}

// Dropped reports how many events this observer missed due to a full buffer.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is the observer registry. All methods are safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	buffer      int
	closed      bool
	logger      *zap.Logger
}

// NewHub creates a hub whose subscribers buffer up to clientBuffer messages.
func NewHub(clientBuffer int, logger *zap.Logger) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = defaultClientBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[uint64]*Subscription),
		buffer:      clientBuffer,
		logger:      logger,
	}
}

// Subscribe registers a new observer. After Close it returns a subscription
// whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{id: h.nextID, ch: make(chan []byte, h.buffer)}
	if h.closed {
		sub.close()
		return sub
	}
	h.subscribers[sub.id] = sub
	metrics.SetLiveObservers(len(h.subscribers))
	return sub
}

// Unsubscribe removes the observer and closes its channel. It is idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.subscribers[sub.id]; ok && current == sub {
		delete(h.subscribers, sub.id)
		metrics.SetLiveObservers(len(h.subscribers))
	}
	sub.close()
}

// Publish encodes evt and offers it to every current observer.
func (h *Hub) Publish(evt Event) {
	msg, err := evt.Encode()
	if err != nil {
		h.logger.Warn("encode live event failed", zap.Error(err))
		return
	}
	h.PublishRaw(msg)
}

// PublishRaw fans an already encoded envelope out to every observer.
func (h *Hub) PublishRaw(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	delivered, dropped := 0, 0
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("live observers lagging", zap.Int("dropped", dropped))
	}
	metrics.ObserveBroadcast(delivered, dropped)
}

// ObserverCount reports how many observers are subscribed.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes everyone. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, id)
	}
	metrics.SetLiveObservers(0)
}

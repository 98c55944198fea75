package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the Redis channel used when none is configured.
const DefaultRelayChannel = "redirector:live-traffic"

const (
	relayQueueSize      = 256
	relayPublishTimeout = 2 * time.Second
	relayRetryMin       = 250 * time.Millisecond
	relayRetryMax       = 30 * time.Second
)

// RedisRelay shares live events across processes. Publish sends to Redis and
// Run republishes every message received on the channel into the local hub,
// so each process's observers see clicks resolved anywhere.
//
// While the subscription is down, Publish delivers to the local hub directly.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  *zap.Logger

	queue     chan []byte
	connected atomic.Bool
	dropped   atomic.Int64

	retryMin time.Duration
	retryMax time.Duration
}

// NewRedisRelay binds client and channel to hub.
func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:   client,
		channel:  channel,
		hub:      hub,
		logger:   logger,
		queue:    make(chan []byte, relayQueueSize),
		retryMin: relayRetryMin,
		retryMax: relayRetryMax,
	}
}

// Publish encodes evt and queues it for Redis without blocking. A full queue
// drops the event.
func (r *RedisRelay) Publish(evt Event) {
	msg, err := evt.Encode()
	if err != nil {
		r.logger.Warn("encode live event failed", zap.Error(err))
		return
	}
	if !r.connected.Load() {
		r.hub.PublishRaw(msg)
		return
	}
	select {
	case r.queue <- msg:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("relay queue full, dropping live events", zap.Int64("dropped", n))
		}
	}
}

// Connected reports whether the channel subscription is established.
func (r *RedisRelay) Connected() bool {
	return r.connected.Load()
}

// Dropped returns how many events were discarded on a full queue.
func (r *RedisRelay) Dropped() int64 {
	return r.dropped.Load()
}

// Run forwards queued events to Redis and republishes channel messages into
// the hub until ctx ends. A failed subscription is retried with exponential
// backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.forward(ctx)
	}()
	defer func() { <-done }()

	backoff := r.retryMin
	for {
		subscribed := r.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			backoff = r.retryMin
		}
		r.logger.Warn("live relay disconnected, retrying", zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.retryMax)
	}
}

// subscribe holds one subscription open and reports whether it was ever
// established.
func (r *RedisRelay) subscribe(ctx context.Context) bool {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		r.connected.Store(false)
		if err := pubsub.Close(); err != nil {
			r.logger.Debug("close relay subscription", zap.Error(err))
		}
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("subscribe live relay failed", zap.String("channel", r.channel), zap.Error(err))
		}
		return false
	}
	r.connected.Store(true)
	r.logger.Info("live relay subscribed", zap.String("channel", r.channel))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-msgs:
			if !ok {
				return true
			}
			r.hub.PublishRaw([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			pubCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
			err := r.client.Publish(pubCtx, r.channel, msg).Err()
			cancel()
			if err != nil {
				r.logger.Warn("relay publish failed, delivering locally", zap.Error(err))
				r.hub.PublishRaw(msg)
			}
		}
	}
}

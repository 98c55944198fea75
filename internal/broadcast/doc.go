// Package broadcast fans click events out to live traffic observers.
//
// A Hub owns the observer registry. Publish encodes an event once and offers
// it to every subscriber without blocking; a subscriber whose buffer is full
// misses that event. Observers only receive events published after they
// subscribe. Handler exposes the hub over WebSocket and RedisRelay lets
// several processes share one live feed.
package broadcast

package broadcast

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 54 * time.Second
	defaultWriteWait    = 10 * time.Second
	maxObserverMessage  = 512
)

// HandlerConfig tunes the WebSocket transport.
type HandlerConfig struct {
	// PingInterval is how often the server pings.
	PingInterval time.Duration
	// PongWait is how long an observer may stay silent before it is
	// disconnected. Defaults to PingInterval*10/9.
	PongWait  time.Duration
	WriteWait time.Duration
	// CheckOrigin overrides the upgrader's origin policy. nil accepts all origins.
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

// Handler upgrades requests to WebSocket and streams hub events to them.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	ping     time.Duration
	pongWait time.Duration
	write    time.Duration
	logger   *zap.Logger
}

// NewHandler wires a hub to the WebSocket transport.
func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = cfg.PingInterval * 10 / 9
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		ping:     cfg.PingInterval,
		pongWait: cfg.PongWait,
		write:    cfg.WriteWait,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	obs := &observer{
		conn:    conn,
		sub:     h.hub.Subscribe(),
		handler: h,
	}
	h.logger.Debug("live observer connected", zap.Int("observers", h.hub.ObserverCount()))
	go obs.writePump()
	go obs.readPump()
}

type observer struct {
	conn    *websocket.Conn
	sub     *Subscription
	handler *Handler
}

// readPump keeps the read deadline fresh on pongs and tears the observer down
// when the peer goes away. Observer messages are discarded.
func (o *observer) readPump() {
	h := o.handler
	defer func() {
		h.hub.Unsubscribe(o.sub)
		_ = o.conn.Close()
	}()

	o.conn.SetReadLimit(maxObserverMessage)
	_ = o.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("live observer read failed", zap.Error(err))
			}
			return
		}
	}
}

func (o *observer) writePump() {
	h := o.handler
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(o.sub)
		_ = o.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-o.sub.Messages():
			_ = o.conn.SetWriteDeadline(time.Now().Add(h.write))
			if !ok {
				_ = o.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(h.write))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

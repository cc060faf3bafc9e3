package controller

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gramscope/gramscope/pkg/redis"
	"github.com/gramscope/gramscope/pkg/retry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to specific origins once the dashboard host is fixed
		return true
	},
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "window.generated", "info", "error", "ping"
	Payload interface{} `json:"payload"` // Event-specific data
}

// HandleWebSocket upgrades the connection and streams generation events as
// they are published on the rollup events channel. Every committed window
// produces one "window.generated" message; there is no per-topic subscription,
// the stream is the whole pipeline.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan ServerMessage, 256)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverRelay(cancel, r.RemoteAddr, "redis subscriber")
		c.relayEvents(ctx, send)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverRelay(cancel, r.RemoteAddr, "ping ticker")
		c.sendPings(ctx, conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.recoverRelay(cancel, r.RemoteAddr, "message writer")
		c.writeMessages(conn, send)
	}()

	// Block on the read loop purely for close detection; the stream carries no
	// client commands.
	c.readUntilClose(ctx, conn, cancel)

	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

func (c *Controller) recoverRelay(cancel context.CancelFunc, remoteAddr, goroutine string) {
	if rec := recover(); rec != nil {
		c.App.Logger.Error("Panic in WebSocket goroutine",
			zap.String("goroutine", goroutine),
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
			zap.String("remote_addr", remoteAddr))
		cancel()
	}
}

// relayEvents subscribes to the rollup events channel and forwards every
// message. Lost Redis connections are retried with backoff and the client is
// told the stream is degraded rather than being dropped.
func (c *Controller) relayEvents(ctx context.Context, send chan<- ServerMessage) {
	cfg := retry.DefaultConfig()
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		attempt++
		err := c.pumpEvents(ctx, send)
		if ctx.Err() != nil {
			return
		}

		backoff := cfg.Backoff(attempt)
		if err != nil {
			c.App.Logger.Warn("Event subscription failed, will retry",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
		}

		select {
		case send <- ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "event stream interrupted, reconnecting",
				"retryIn":     backoff.Seconds(),
				"recoverable": true,
			},
		}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

// pumpEvents runs one subscription until it fails or the context ends.
func (c *Controller) pumpEvents(ctx context.Context, send chan<- ServerMessage) error {
	pubsub := c.App.RedisClient.Subscribe(ctx, redis.EventsChannel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Error("Error closing event subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return err
	}

	select {
	case send <- ServerMessage{Type: "info", Payload: map[string]string{"message": "event stream connected"}}:
	case <-ctx.Done():
		return ctx.Err()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse event message", zap.Error(err))
				continue
			}
			select {
			case send <- ServerMessage{Type: "window.generated", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// sendPings keeps the connection alive; the client's pong resets the read
// deadline in readUntilClose.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (c *Controller) readUntilClose(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Error("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}
			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				return
			}
		}
	}
}

package push

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketConfig holds WebSocket resource timeouts.
type WebSocketConfig struct {
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// ReadTimeout is the idle time after which the connection is dropped.
	// Pongs extend it.
	ReadTimeout time.Duration

	// PingInterval is the keepalive period. It must be shorter than
	// ReadTimeout.
	PingInterval time.Duration

	// MaxMessageSize caps a single client frame.
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket timeouts.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: BufferSize,
	}
}

type outgoingMessage struct {
	text   string
	result chan error
}

// WebSocketResource is a push resource over a gorilla WebSocket. A single
// writer goroutine owns all writes so messages complete in send order.
type WebSocketResource struct {
	id     string
	conn   *websocket.Conn
	req    *http.Request
	config WebSocketConfig
	logger *slog.Logger

	sends     chan outgoingMessage
	done      chan struct{}
	writeDone chan struct{}
	closeOnce sync.Once
	resumed   atomic.Bool
}

// NewWebSocketResource wraps an upgraded connection and starts its writer.
func NewWebSocketResource(conn *websocket.Conn, req *http.Request, config WebSocketConfig, logger *slog.Logger) *WebSocketResource {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWebSocketConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	id := uuid.NewString()
	r := &WebSocketResource{
		id:        id,
		conn:      conn,
		req:       req,
		config:    config,
		logger:    logger.With("component", "push_websocket", "resource", id),
		sends:     make(chan outgoingMessage, 16),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// UUID implements Resource.
func (r *WebSocketResource) UUID() string { return r.id }

// Transport implements Resource.
func (r *WebSocketResource) Transport() Transport { return TransportWebSocket }

// Request implements Resource.
func (r *WebSocketResource) Request() *http.Request { return r.req }

// Send implements Resource.
func (r *WebSocketResource) Send(message string) <-chan error {
	if r.resumed.Load() {
		return completed(ErrResourceClosed)
	}
	result := make(chan error, 1)
	select {
	case r.sends <- outgoingMessage{text: message, result: result}:
		return result
	case <-r.done:
		return completed(ErrResourceClosed)
	}
}

// Suspend implements Resource. A WebSocket stays open until closed.
func (r *WebSocketResource) Suspend(time.Duration) {}

// Resume implements Resource by closing the connection.
func (r *WebSocketResource) Resume() {
	_ = r.Close()
}

// IsResumed implements Resource.
func (r *WebSocketResource) IsResumed() bool { return r.resumed.Load() }

// Close flushes queued messages, sends a close frame and closes the
// connection.
func (r *WebSocketResource) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.resumed.Store(true)
		close(r.done)
		<-r.writeDone
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(r.config.WriteTimeout))
		err = r.conn.Close()
	})
	return err
}

// ReadLoop reads client frames and hands each to handle until the
// connection fails or is closed. The resource is closed on return.
func (r *WebSocketResource) ReadLoop(handle func(data []byte)) {
	defer r.Close()

	if r.config.MaxMessageSize > 0 {
		r.conn.SetReadLimit(r.config.MaxMessageSize)
	}
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(r.config.ReadTimeout))
	})

	for {
		r.conn.SetReadDeadline(time.Now().Add(r.config.ReadTimeout))
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && !r.resumed.Load() {
				r.logger.Debug("read error", "error", err)
			}
			return
		}
		handle(msg)
	}
}

func (r *WebSocketResource) writeLoop() {
	defer close(r.writeDone)

	ticker := time.NewTicker(r.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case m := <-r.sends:
			m.result <- r.write(m.text)

		case <-ticker.C:
			r.conn.SetWriteDeadline(time.Now().Add(r.config.WriteTimeout))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				r.logger.Debug("ping error", "error", err)
			}

		case <-r.done:
			// Flush what was queued before the close.
			for {
				select {
				case m := <-r.sends:
					m.result <- r.write(m.text)
				default:
					return
				}
			}
		}
	}
}

func (r *WebSocketResource) write(text string) error {
	r.conn.SetWriteDeadline(time.Now().Add(r.config.WriteTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		r.logger.Debug("write error", "error", err)
		return err
	}
	return nil
}

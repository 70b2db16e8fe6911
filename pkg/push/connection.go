package push

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

// DefaultDrainTimeout bounds how long Disconnect waits for the last send
// to complete before closing the resource.
const DefaultDrainTimeout = time.Second

// Recorder observes push activity.
type Recorder interface {
	ConnectionOpened(t Transport)
	ConnectionClosed(t Transport)
	MessageReceived(t Transport)
	MessageSent(t Transport)
	NotificationSent(kind string)
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithConnectionLogger sets the connection's logger.
func WithConnectionLogger(logger *slog.Logger) ConnectionOption {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDrainTimeout sets how long Disconnect waits for an in-flight send.
func WithDrainTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.drainTimeout = d
	}
}

// WithConnectionRecorder sets the recorder notified of connection changes.
func WithConnectionRecorder(r Recorder) ConnectionOption {
	return func(c *Connection) {
		c.recorder = r
	}
}

// Connection is the push channel of one UI. All methods are called with
// the session lock held.
//
// The state is StateConnected exactly when a resource is bound.
type Connection struct {
	ui     *session.UI
	writer *uidl.Writer
	logger *slog.Logger

	state    State
	resource Resource

	// outgoing completes when the last sent message has been written.
	outgoing <-chan error

	fragments    *FragmentBuffer
	drainTimeout time.Duration
	recorder     Recorder
}

// NewConnection creates a disconnected push connection for ui and binds it
// to the UI.
func NewConnection(ui *session.UI, writer *uidl.Writer, opts ...ConnectionOption) *Connection {
	c := &Connection{
		ui:           ui,
		writer:       writer,
		logger:       ui.Logger(),
		state:        StateDisconnected,
		fragments:    NewFragmentBuffer(),
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "push_connection")
	ui.SetPushConnection(c)
	return c
}

// State returns the current state.
func (c *Connection) State() State { return c.state }

// Resource returns the bound resource, nil unless connected.
func (c *Connection) Resource() Resource { return c.resource }

// UI returns the UI the connection belongs to.
func (c *Connection) UI() *session.UI { return c.ui }

// IsConnected implements session.PushConnection.
func (c *Connection) IsConnected() bool { return c.state == StateConnected }

// Push sends the UI's pending changes. While disconnected the request is
// latched and flushed on the next Connect. async is false for pushes
// answering a client message.
func (c *Connection) Push(async bool) error {
	if c.state == StateConnected && c.resource.IsResumed() {
		// The transport finished the exchange (long polling after a
		// send) before its disconnect event reached us.
		c.logger.Debug("resource resumed before push, latching", "resource", c.resource.UUID())
		c.ConnectionLost()
	}

	ev := EventPushAsync
	if !async {
		ev = EventPushResponse
	}
	next, action := Transition(c.state, ev)
	c.state = next
	if action == ActionSend {
		return c.send(async)
	}
	c.logger.Debug("push latched", "state", c.state.String(), "async", async)
	return nil
}

// Connect binds resource and flushes a latched push. A connection bound to
// another resource is disconnected first.
func (c *Connection) Connect(resource Resource) error {
	if c.state == StateConnected && c.resource != resource {
		c.logger.Debug("replacing push resource",
			"old", c.resource.UUID(), "new", resource.UUID())
		c.Disconnect()
	}

	next, action := Transition(c.state, EventConnect)
	reconnect := c.resource == resource
	c.state = next
	c.resource = resource
	if !reconnect && c.recorder != nil {
		c.recorder.ConnectionOpened(resource.Transport())
	}
	c.logger.Debug("push connected",
		"resource", resource.UUID(),
		"transport", string(resource.Transport()))

	switch action {
	case ActionFlushAsync:
		return c.send(true)
	case ActionFlushResponse:
		return c.send(false)
	}
	return nil
}

// Disconnect closes the bound resource after waiting, up to the drain
// timeout, for the last message to be written. A resource already resumed
// by the transport is treated as lost instead.
func (c *Connection) Disconnect() {
	if c.state != StateConnected {
		c.logger.Debug("disconnect called while not connected", "state", c.state.String())
		return
	}
	if c.resource.IsResumed() {
		c.logger.Debug("resource already resumed, treating as connection lost", "resource", c.resource.UUID())
		c.ConnectionLost()
		return
	}

	if c.outgoing != nil {
		timer := time.NewTimer(c.drainTimeout)
		select {
		case err := <-c.outgoing:
			if err != nil {
				c.logger.Debug("last push message failed", "error", err)
			}
		case <-timer.C:
			c.logger.Debug("timeout waiting for push messages to be sent", "timeout", c.drainTimeout)
		}
		timer.Stop()
	}

	_, action := Transition(c.state, EventDisconnect)
	if action == ActionClose {
		if err := c.resource.Close(); err != nil {
			c.logger.Debug("error closing push resource", "error", err)
		}
	}
	c.ConnectionLost()
}

// ConnectionLost forgets the bound resource without closing it. It only
// leaves StateConnected; a latched push survives.
func (c *Connection) ConnectionLost() {
	next, _ := Transition(c.state, EventConnectionLost)
	if c.resource != nil {
		if c.recorder != nil {
			c.recorder.ConnectionClosed(c.resource.Transport())
		}
		c.logger.Debug("push connection lost", "resource", c.resource.UUID())
	}
	c.state = next
	c.resource = nil
	c.outgoing = nil
	c.fragments.Reset()
}

// ReceiveMessage reassembles a client message. WebSocket frames carry
// <len>|payload fragments and nil is returned until a message is
// complete; other transports deliver whole messages.
func (c *Connection) ReceiveMessage(t Transport, r io.Reader) (io.Reader, error) {
	if c.recorder != nil {
		c.recorder.MessageReceived(t)
	}
	if t != TransportWebSocket {
		return r, nil
	}
	return c.fragments.Receive(r)
}

func (c *Connection) send(async bool) error {
	var buf bytes.Buffer
	if err := c.writer.Write(c.ui, &buf, async); err != nil {
		return err
	}
	c.outgoing = c.resource.Send(uidl.Wrap(buf.Bytes()))
	if c.recorder != nil {
		c.recorder.MessageSent(c.resource.Transport())
	}
	return nil
}

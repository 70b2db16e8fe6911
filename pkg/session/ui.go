package session

import (
	"log/slog"

	"github.com/vango-dev/uidl/pkg/connector"
)

// PushConnection is the UI's view of its push channel.
type PushConnection interface {
	// Push sends pending changes, or latches the request until the
	// channel connects.
	Push(async bool) error

	// IsConnected reports whether a transport resource is bound.
	IsConnected() bool

	// Disconnect closes the bound resource.
	Disconnect()

	// ConnectionLost drops the bound resource without closing it.
	ConnectionLost()
}

// UI is one browser window's connector tree within a session.
type UI struct {
	id      int
	session *Session
	tracker *connector.Tracker
	logger  *slog.Logger

	lastProcessedClientToServerID int
	closing                       bool

	// clientCache holds the types the client has mappings for. An empty
	// cache means the next response is a full resynchronization.
	clientCache map[*connector.Type]struct{}

	push PushConnection

	// lastTimeoutInterval is the session timeout last announced to the
	// client, -1 before the first announcement.
	lastTimeoutInterval int
}

func newUI(id int, s *Session) *UI {
	logger := s.logger.With("ui_id", id)
	return &UI{
		id:                            id,
		session:                       s,
		tracker:                       connector.NewTracker(logger),
		logger:                        logger,
		lastProcessedClientToServerID: 0,
		clientCache:                   make(map[*connector.Type]struct{}),
		lastTimeoutInterval:           -1,
	}
}

// ID returns the UI id, unique within the session.
func (ui *UI) ID() int { return ui.id }

// Session returns the owning session.
func (ui *UI) Session() *Session { return ui.session }

// Tracker returns the UI's connector tracker.
func (ui *UI) Tracker() *connector.Tracker { return ui.tracker }

// Logger returns the UI scoped logger.
func (ui *UI) Logger() *slog.Logger { return ui.logger }

// LastProcessedClientToServerID returns the id of the last applied client
// message.
func (ui *UI) LastProcessedClientToServerID() int {
	return ui.lastProcessedClientToServerID
}

// SetLastProcessedClientToServerID records the id of the last applied
// client message.
func (ui *UI) SetLastProcessedClientToServerID(id int) {
	ui.lastProcessedClientToServerID = id
}

// IsClosing reports whether the UI is being torn down.
func (ui *UI) IsClosing() bool { return ui.closing }

// Close marks the UI as closing. RPC calls to it are ignored from now on.
func (ui *UI) Close() { ui.closing = true }

// RepaintAll forces the next response to resend every visible connector
// in full.
func (ui *UI) RepaintAll() {
	ui.clientCache = make(map[*connector.Type]struct{})
	ui.tracker.MarkAllConnectorsDirty()
	ui.tracker.MarkAllClientSidesUninitialized()
	ui.logger.Debug("repaint all requested")
}

// IsClientCacheEmpty reports whether the client knows no types yet, which
// is the case for the first response and after RepaintAll.
func (ui *UI) IsClientCacheEmpty() bool {
	return len(ui.clientCache) == 0
}

// ClientKnowsType reports whether the client has a mapping for t.
func (ui *UI) ClientKnowsType(t *connector.Type) bool {
	_, ok := ui.clientCache[t]
	return ok
}

// AddClientType records that the client now has a mapping for t.
func (ui *UI) AddClientType(t *connector.Type) {
	ui.clientCache[t] = struct{}{}
}

// PushConnection returns the UI's push connection, if any.
func (ui *UI) PushConnection() PushConnection { return ui.push }

// SetPushConnection binds a push connection to the UI.
func (ui *UI) SetPushConnection(pc PushConnection) { ui.push = pc }

// LastTimeoutInterval returns the session timeout last sent to the client.
func (ui *UI) LastTimeoutInterval() int { return ui.lastTimeoutInterval }

// SetLastTimeoutInterval records the session timeout sent to the client.
func (ui *UI) SetLastTimeoutInterval(seconds int) { ui.lastTimeoutInterval = seconds }

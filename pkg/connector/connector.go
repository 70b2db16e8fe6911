package connector

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for connector tracking.
var (
	// ErrWritingResponse is returned when a connector is marked dirty while
	// a response is being written.
	ErrWritingResponse = errors.New("connector: cannot mark dirty while writing response")

	// ErrWritingResponseUnchanged is returned when SetWritingResponse is
	// called with the value the flag already has.
	ErrWritingResponseUnchanged = errors.New("connector: writing response flag unchanged")

	// ErrDuplicateConnector is returned when an id is registered twice.
	ErrDuplicateConnector = errors.New("connector: duplicate connector id")

	// ErrUnknownConnector is returned for ids the tracker does not know.
	ErrUnknownConnector = errors.New("connector: unknown connector")

	// ErrUnknownParent is returned when registering under a missing parent.
	ErrUnknownParent = errors.New("connector: unknown parent")

	// ErrInvalidID is returned when registering a connector with an empty id.
	ErrInvalidID = errors.New("connector: empty connector id")

	// ErrUnknownMethod is returned by an RPC manager for unregistered methods.
	ErrUnknownMethod = errors.New("connector: unknown rpc method")
)

// Connector is a server-side node paired with one client-side widget.
type Connector interface {
	// ConnectorID returns the stable id shared with the client.
	ConnectorID() string

	// Type returns the descriptor used for type tags and dependencies.
	Type() *Type

	// Enabled reports the connector's own enabled flag. Effective
	// enablement also depends on ancestors, see Tracker.IsEnabled.
	Enabled() bool

	// Visible reports the connector's own visibility flag.
	Visible() bool
}

// StateEncoder is implemented by connectors with shared state.
type StateEncoder interface {
	EncodeState() (map[string]any, error)
}

// BeforeResponder is implemented by connectors that need a hook right
// before their state is serialized. initial is true when the client has not
// seen the connector yet. The hook may mark other connectors dirty.
type BeforeResponder interface {
	BeforeClientResponse(initial bool)
}

// VariableOwner receives legacy variable changes.
type VariableOwner interface {
	ChangeVariables(source any, variables map[string]any) error
}

// Painter is implemented by legacy connectors that paint a UIDL tree.
type Painter interface {
	Paint(target *PaintTarget) error
}

// RPCManager invokes server RPC methods of one interface.
type RPCManager interface {
	Invoke(method string, params []json.RawMessage) error
}

// RPCTarget exposes the RPC managers registered on a connector.
type RPCTarget interface {
	RPCManager(iface string) (RPCManager, bool)
}

// ClientRPCSource is implemented by connectors that queue client RPC calls.
// PendingRPCCalls returns the queued calls without removing them;
// RetrievePendingRPCCalls returns them and empties the queue.
type ClientRPCSource interface {
	PendingRPCCalls() []ClientMethodInvocation
	RetrievePendingRPCCalls() []ClientMethodInvocation
}

// ResourceProvider is implemented by connectors that reference resources
// the client should fetch. Keys are local to the connector.
type ResourceProvider interface {
	Resources() map[string]string
}

// RPCFuncs is an RPCManager backed by a method name to function map.
type RPCFuncs map[string]func(params []json.RawMessage) error

// Invoke calls the named method.
func (f RPCFuncs) Invoke(method string, params []json.RawMessage) error {
	fn, ok := f[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return fn(params)
}

// Error wraps a failure raised for one connector.
type Error struct {
	ConnectorID string
	Op          string // Operation that failed
	Err         error  // Underlying error
}

// Error returns the error message with connector context.
func (e *Error) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.ConnectorID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new connector Error.
func NewError(connectorID, op string, err error) *Error {
	return &Error{ConnectorID: connectorID, Op: op, Err: err}
}

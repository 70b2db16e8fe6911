package rpc

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"

	uerrors "github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/session"
)

// ErrInvalidSecurityKey is returned when a message does not carry the
// session's CSRF token. Compare with errors.Is.
var ErrInvalidSecurityKey = uerrors.New("U001")

// Outcome is what happened to one invocation.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeFailed           Outcome = "failed"
	OutcomeUnknownConnector Outcome = "unknown_connector"
	OutcomeDisabled         Outcome = "disabled"
	OutcomeIgnoredClose     Outcome = "ignored_close"
	OutcomeUIClosing        Outcome = "ui_closing"
	OutcomeNoRPCManager     Outcome = "no_rpc_manager"
)

// Reasons passed to Recorder.Resynchronized.
const (
	ResyncDuplicate     = "duplicate"
	ResyncGap           = "gap"
	ResyncClientRequest = "client_request"
)

// Recorder observes invocation outcomes and forced resynchronizations.
type Recorder interface {
	InvocationHandled(outcome Outcome)
	Resynchronized(reason string)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRecorder sets the recorder notified of outcomes.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// Handler applies client-to-server messages to a UI.
type Handler struct {
	logger   *slog.Logger
	recorder Recorder
}

// NewHandler creates a Handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "rpc_handler")
	return h
}

// Handle reads one message from r and applies it to ui. The caller holds
// the session lock.
//
// Out of order messages are not applied; they force a full
// resynchronization instead. Failures raised by connector code go to the
// session's error handler and never abort the batch. Handle returns
// ErrInvalidSecurityKey for a bad token and a malformed-category error
// for unparsable input.
func (h *Handler) Handle(ui *session.UI, r io.Reader) error {
	sess := ui.Session()
	cfg := sess.Config()
	sess.TouchLastRequest()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("rpc: read message: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	req, err := ParseRequest(data, cfg.SyncIDCheckEnabled)
	if err != nil {
		h.logger.Error("unable to parse client message", "ui_id", ui.ID(), "error", err)
		return err
	}

	if cfg.XSRFProtectionEnabled && !tokenEqual(sess.CSRFToken(), req.CSRFToken) {
		return uerrors.New("U001")
	}

	if req.WidgetsetVersion != "" && req.WidgetsetVersion != cfg.Version {
		h.logger.Warn("widgetset version mismatch",
			"server_version", cfg.Version,
			"client_version", req.WidgetsetVersion)
	}
	if req.ClientID == NoClientID {
		h.logger.Warn("server message without client id received", "ui_id", ui.ID())
	}

	expected := ui.LastProcessedClientToServerID() + 1
	switch {
	case req.ClientID != NoClientID && req.ClientID < expected:
		// A resent message. The first copy was applied but its response
		// may never have reached the client.
		ui.RepaintAll()
		h.resynchronized(ResyncDuplicate)
		h.logger.Debug("ignoring old message from the client",
			"ui_id", ui.ID(), "expected", expected, "got", req.ClientID)
	case req.ClientID != NoClientID && req.ClientID > expected:
		ui.RepaintAll()
		h.resynchronized(ResyncGap)
		h.logger.Warn("unexpected message id from the client",
			"ui_id", ui.ID(), "expected", expected, "got", req.ClientID)
	default:
		ui.SetLastProcessedClientToServerID(expected)
		if err := h.handleInvocations(ui, req); err != nil {
			return err
		}
	}

	if req.Resynchronize {
		ui.RepaintAll()
		h.resynchronized(ResyncClientRequest)
	}
	return nil
}

func tokenEqual(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func (h *Handler) handleInvocations(ui *session.UI, req *Request) error {
	tracker := ui.Tracker()
	invocations, err := ParseInvocations(req.Invocations, func(id string) bool {
		_, ok := tracker.Connector(id)
		return ok
	})
	if err != nil {
		h.logger.Warn("unable to parse rpc call from the client", "ui_id", ui.ID(), "error", err)
		return err
	}

	// Enablement is taken before anything is dispatched so that an
	// invocation disabling a connector does not drop later invocations
	// sent for it in the same batch.
	enabled := make(map[string]bool)
	for _, inv := range invocations {
		id := inv.Target()
		if _, ok := tracker.Connector(id); ok && tracker.IsConnectorEnabled(id) {
			enabled[id] = true
		}
	}

	for _, inv := range invocations {
		id := inv.Target()
		c, ok := tracker.Connector(id)
		if !ok {
			h.logUnknown(inv)
			h.outcome(OutcomeUnknownConnector)
			continue
		}

		if !enabled[id] {
			switch inv := inv.(type) {
			case *LegacyChange:
				if inv.IsCloseOnly() {
					h.outcome(OutcomeIgnoredClose)
					continue
				}
			case *MethodCall:
				if inv.Interface == DataRequestInterface {
					h.dispatch(ui, c, inv)
					continue
				}
			}
			h.logger.Warn("ignoring rpc call for disabled connector",
				"ui_id", ui.ID(), "connector_id", id, "type", c.Type().String())
			h.outcome(OutcomeDisabled)
			continue
		}

		if ui.IsClosing() {
			h.logger.Warn("ignoring rpc call in closed ui",
				"ui_id", ui.ID(), "connector_id", id, "type", c.Type().String())
			h.outcome(OutcomeUIClosing)
			continue
		}

		h.dispatch(ui, c, inv)
	}
	return nil
}

func (h *Handler) dispatch(ui *session.UI, c connector.Connector, inv Invocation) {
	switch inv := inv.(type) {
	case *MethodCall:
		h.invoke(ui, c, inv)
	case *LegacyChange:
		h.changeVariables(ui, c, inv)
	}
}

func (h *Handler) invoke(ui *session.UI, c connector.Connector, call *MethodCall) {
	var manager connector.RPCManager
	if target, ok := c.(connector.RPCTarget); ok {
		manager, _ = target.RPCManager(call.Interface)
	}
	if manager == nil {
		h.logger.Warn("ignoring rpc call as no rpc implementation is registered",
			"ui_id", ui.ID(),
			"connector_id", call.ConnectorID,
			"interface", call.Interface,
			"method", call.Method)
		h.outcome(OutcomeNoRPCManager)
		return
	}

	err := guard(func() error { return manager.Invoke(call.Method, call.Params) })
	if err != nil {
		op := "rpc " + call.Interface + "." + call.Method
		ui.Session().HandleError(ui, connector.NewError(call.ConnectorID, op, uerrors.New("U021").Wrap(err)))
		h.outcome(OutcomeFailed)
		return
	}
	h.outcome(OutcomeApplied)
}

func (h *Handler) changeVariables(ui *session.UI, c connector.Connector, change *LegacyChange) {
	owner, ok := c.(connector.VariableOwner)
	if !ok {
		names := make([]string, 0, len(change.Variables))
		for k := range change.Variables {
			names = append(names, k)
		}
		err := uerrors.New("U022").WithDetail(fmt.Sprintf("%s sent legacy variables %v", c.Type().String(), names))
		ui.Session().HandleError(ui, connector.NewError(change.ConnectorID, "change variables", err))
		h.outcome(OutcomeFailed)
		return
	}

	if err := guard(func() error { return owner.ChangeVariables(nil, change.Variables) }); err != nil {
		ui.Session().HandleError(ui, connector.NewError(change.ConnectorID, "change variables", err))
		h.outcome(OutcomeFailed)
		return
	}
	h.outcome(OutcomeApplied)
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &session.PanicError{Value: r}
		}
	}()
	return fn()
}

func (h *Handler) logUnknown(inv Invocation) {
	attrs := []any{"connector_id", inv.Target()}
	if call, ok := inv.(*MethodCall); ok {
		attrs = append(attrs, "interface", call.Interface, "method", call.Method)
	}
	h.logger.Debug("received rpc call for unknown connector", attrs...)
}

func (h *Handler) outcome(o Outcome) {
	if h.recorder != nil {
		h.recorder.InvocationHandled(o)
	}
}

func (h *Handler) resynchronized(reason string) {
	if h.recorder != nil {
		h.recorder.Resynchronized(reason)
	}
}

package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vango-dev/uidl/pkg/connector"
)

// Sentinel errors for session handling.
var (
	// ErrSessionExpired is returned when a request refers to a session that
	// no longer exists or has timed out.
	ErrSessionExpired = errors.New("session: session expired")

	// ErrNotLocked is returned by Unlock when the session is not locked.
	ErrNotLocked = errors.New("session: unlock of unlocked session")

	// ErrUINotFound is returned when a UI id does not exist in the session.
	ErrUINotFound = errors.New("session: ui not found")

	// ErrManagerClosed is returned when creating sessions after shutdown.
	ErrManagerClosed = errors.New("session: manager closed")
)

// ErrorEvent describes a failure raised while servicing a UI.
type ErrorEvent struct {
	Err         error
	UI          *UI
	ConnectorID string
}

// ErrorHandler reacts to failures raised by application code.
type ErrorHandler interface {
	HandleError(ev *ErrorEvent)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(ev *ErrorEvent)

// HandleError calls f(ev).
func (f ErrorHandlerFunc) HandleError(ev *ErrorEvent) { f(ev) }

// ErrorHandlerProvider is implemented by connectors with their own
// error handler.
type ErrorHandlerProvider interface {
	ErrorHandler() ErrorHandler
}

// LoggingErrorHandler logs every error event. It is used when neither the
// connector chain nor the session provides a handler.
type LoggingErrorHandler struct {
	Logger *slog.Logger
}

// HandleError logs ev at error level.
func (h LoggingErrorHandler) HandleError(ev *ErrorEvent) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"error", ev.Err}
	if ev.ConnectorID != "" {
		attrs = append(attrs, "connector_id", ev.ConnectorID)
	}
	if ev.UI != nil {
		attrs = append(attrs, "ui_id", ev.UI.ID())
	}
	logger.Error("unhandled error", attrs...)
}

// FindErrorHandler returns the handler for a failure raised by
// connectorID: the nearest connector in the parent chain implementing
// ErrorHandlerProvider, then the session handler, then a logging handler.
func FindErrorHandler(ui *UI, connectorID string) ErrorHandler {
	if ui != nil {
		tracker := ui.Tracker()
		for id := connectorID; id != ""; id = tracker.Parent(id) {
			c, ok := tracker.Connector(id)
			if !ok {
				break
			}
			if p, ok := c.(ErrorHandlerProvider); ok {
				if h := p.ErrorHandler(); h != nil {
					return h
				}
			}
		}
		if h := ui.Session().ErrorHandler(); h != nil {
			return h
		}
		return LoggingErrorHandler{Logger: ui.Session().Logger()}
	}
	return LoggingErrorHandler{}
}

// connectorOf extracts the connector id carried by err, if any.
func connectorOf(err error) string {
	var ce *connector.Error
	if errors.As(err, &ce) {
		return ce.ConnectorID
	}
	return ""
}

// PanicError wraps a value recovered from a panic in application code.
type PanicError struct {
	Value any
}

// Error returns the panic value as text.
func (e *PanicError) Error() string {
	return fmt.Sprintf("session: panic: %v", e.Value)
}

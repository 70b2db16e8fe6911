package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	uerrors "github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/rpc"
	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

const defaultTracerName = "github.com/vango-dev/uidl/pkg/push"

// Notification kinds passed to Recorder.NotificationSent.
const (
	NotificationRefresh        = "refresh"
	NotificationSessionExpired = "session_expired"
	NotificationUINotFound     = "ui_not_found"
	NotificationInternalError  = "internal_error"
)

// SessionFinder returns the session a push request belongs to. It returns
// session.ErrSessionExpired when the session is gone.
type SessionFinder func(r *http.Request) (*session.Session, error)

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

// WithTracer sets the tracer used for push spans.
func WithTracer(t trace.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// WithRecorder sets the recorder notified of push activity.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithSystemMessages sets the notification texts used when no session is
// available to provide them.
func WithSystemMessages(m session.SystemMessages) Option {
	return func(h *Handler) {
		h.messages = m
	}
}

// WithNotificationTimeout bounds how long a critical notification may take
// to be written before its resource is resumed.
func WithNotificationTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.notifyTimeout = d
	}
}

// Handler dispatches push connect, message and disconnect events to the
// UI's Connection. Every event runs under the session lock.
type Handler struct {
	sessions      SessionFinder
	rpc           *rpc.Handler
	logger        *slog.Logger
	tracer        trace.Tracer
	recorder      Recorder
	messages      session.SystemMessages
	notifyTimeout time.Duration
}

// NewHandler creates a Handler applying client messages with rpcHandler.
func NewHandler(sessions SessionFinder, rpcHandler *rpc.Handler, opts ...Option) *Handler {
	h := &Handler{
		sessions:      sessions,
		rpc:           rpcHandler,
		logger:        slog.Default(),
		tracer:        otel.Tracer(defaultTracerName),
		messages:      session.DefaultSystemMessages(),
		notifyTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "push_handler")
	return h
}

// callback runs with the session lock held for an existing UI.
type callback func(ctx context.Context, res Resource, ui *session.UI) error

// OnConnect binds a newly opened resource to the UI's connection. A wrong
// push id gets a refresh notification instead.
func (h *Handler) OnConnect(res Resource) {
	h.callWithUI(res, "push.connect", h.establish)
}

// OnMessage feeds a client message to the RPC handler and pushes the
// resulting changes. body is one WebSocket frame, or the whole message for
// the HTTP transports.
func (h *Handler) OnMessage(res Resource, body io.Reader) {
	h.callWithUI(res, "push.message", func(ctx context.Context, res Resource, ui *session.UI) error {
		return h.receive(ctx, res, ui, body)
	})
}

func (h *Handler) establish(_ context.Context, res Resource, ui *session.UI) error {
	h.logger.Debug("new push connection",
		"resource", res.UUID(),
		"transport", string(res.Transport()))

	sess := ui.Session()
	if !validPushID(sess, res.Request().URL.Query().Get(PushIDParameter)) {
		h.logger.Warn("invalid identifier in new push connection", "remote_addr", res.Request().RemoteAddr)
		h.sendRefreshAndDisconnect(res)
		return nil
	}

	conn, err := connectionFor(ui)
	if err != nil {
		return err
	}
	h.suspend(res, sess.Config())
	return conn.Connect(res)
}

func (h *Handler) receive(_ context.Context, res Resource, ui *session.UI, body io.Reader) error {
	h.logger.Debug("received push message", "resource", res.UUID())

	conn, err := connectionFor(ui)
	if err != nil {
		return err
	}
	reader, err := conn.ReceiveMessage(res.Transport(), body)
	if err != nil {
		h.logger.Error("invalid push message", "error", err)
		h.sendRefreshAndDisconnect(res)
		return nil
	}
	if reader == nil {
		return nil
	}

	if err := h.rpc.Handle(ui, reader); err != nil {
		if !uerrors.Recoverable(err) {
			return err
		}
		if errors.Is(err, rpc.ErrInvalidSecurityKey) {
			h.logger.Warn("invalid security key received", "remote_addr", res.Request().RemoteAddr)
		} else {
			h.logger.Error("error handling push message", "error", err)
		}
		h.sendRefreshAndDisconnect(res)
		return nil
	}
	return conn.Push(false)
}

func (h *Handler) suspend(res Resource, cfg *session.DeploymentConfig) {
	if res.Transport() == TransportLongPolling {
		res.Suspend(cfg.LongPollingSuspendTimeout)
		return
	}
	res.Suspend(-1)
}

func (h *Handler) callWithUI(res Resource, spanName string, fn callback) {
	req := res.Request()
	ctx, span := h.tracer.Start(req.Context(), spanName,
		trace.WithAttributes(
			attribute.String("push.transport", string(res.Transport())),
			attribute.String("push.resource", res.UUID()),
		),
	)
	defer span.End()

	sess, err := h.sessions(req)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			span.SetAttributes(attribute.Bool("session.expired", true))
			h.sendNotificationAndDisconnect(res, NotificationSessionExpired, uidl.SessionExpiredNotification(h.messages))
			return
		}
		h.logger.Error("could not get session", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.String("session.id", sess.ID()))

	sess.Lock()
	defer h.unlock(sess)

	ui := sess.FindUI(req)
	if ui == nil {
		h.sendNotificationAndDisconnect(res, NotificationUINotFound, uidl.UINotFoundNotification(sess.Config().Messages))
		return
	}
	span.SetAttributes(attribute.Int("ui.id", ui.ID()))

	if err := guard(func() error { return fn(ctx, res, ui) }); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		// Over the HTTP transports res may be the request carrying a
		// client message; the notification belongs on the open channel.
		errorResource := res
		if conn, cerr := connectionFor(ui); cerr == nil && conn.Resource() != nil {
			errorResource = conn.Resource()
		}
		h.sendNotificationAndDisconnect(errorResource, NotificationInternalError,
			uidl.InternalErrorNotification(sess.Config().Messages, ""))
		sess.HandleError(ui, err)
	}
}

// OnDisconnect reports a closed resource to the UI's connection. The UI is
// found by the request parameters or, failing that, by the resource it is
// bound to.
func (h *Handler) OnDisconnect(res Resource) {
	req := res.Request()
	_, span := h.tracer.Start(req.Context(), "push.disconnect",
		trace.WithAttributes(
			attribute.String("push.transport", string(res.Transport())),
			attribute.String("push.resource", res.UUID()),
		),
	)
	defer span.End()

	sess, err := h.sessions(req)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			// Expected after a server restart: the client reconnects, gets
			// the expired notification and closes the connection.
			h.logger.Debug("session expired before push disconnect event was received")
			return
		}
		h.logger.Error("could not get session", "error", err)
		return
	}

	sess.Lock()
	defer h.unlock(sess)

	err = guard(func() error {
		ui := sess.FindUI(req)
		if ui == nil {
			ui = findUIUsingResource(res, sess.UIs())
		}
		if ui == nil {
			h.logger.Debug("could not get ui for disconnected resource", "resource", res.UUID())
			return nil
		}
		span.SetAttributes(attribute.Int("ui.id", ui.ID()))

		conn, err := connectionFor(ui)
		if err != nil {
			return nil
		}
		if bound := conn.Resource(); bound != nil && bound != res {
			h.logger.Debug("ignoring disconnect of stale resource",
				"resource", res.UUID(), "bound", bound.UUID())
			return nil
		}

		if sess.Config().PushMode == session.PushModeDisabled {
			h.logger.Debug("push connection closed", "resource", res.UUID())
		} else {
			h.logger.Debug("push connection unexpectedly closed",
				"resource", res.UUID(), "transport", string(res.Transport()))
		}
		conn.ConnectionLost()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sess.HandleError(nil, err)
	}
}

// unlock releases the session lock. A failure can only be logged; no
// error handler may run without the lock.
func (h *Handler) unlock(sess *session.Session) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("error while unlocking session", "error", &session.PanicError{Value: r})
		}
	}()
	if err := sess.Unlock(); err != nil {
		h.logger.Warn("error while unlocking session", "error", err)
	}
}

func (h *Handler) sendRefreshAndDisconnect(res Resource) {
	h.sendNotificationAndDisconnect(res, NotificationRefresh, uidl.RefreshNotification())
}

// sendNotificationAndDisconnect writes a critical notification and resumes
// the resource. Resources already resumed are left alone.
func (h *Handler) sendNotificationAndDisconnect(res Resource, kind, notification string) {
	if res.IsResumed() {
		h.logger.Debug("notification for resource no longer in scope", "kind", kind)
		return
	}
	timer := time.NewTimer(h.notifyTimeout)
	defer timer.Stop()
	select {
	case err := <-res.Send(notification):
		if err != nil {
			h.logger.Debug("failed to send critical notification", "kind", kind, "error", err)
		}
	case <-timer.C:
		h.logger.Debug("timeout sending critical notification", "kind", kind)
	}
	res.Resume()
	if h.recorder != nil {
		h.recorder.NotificationSent(kind)
	}
}

func validPushID(sess *session.Session, id string) bool {
	return id != "" && id == sess.PushID()
}

func connectionFor(ui *session.UI) (*Connection, error) {
	if conn, ok := ui.PushConnection().(*Connection); ok && conn != nil {
		return conn, nil
	}
	return nil, uerrors.New("U031")
}

func findUIUsingResource(res Resource, uis []*session.UI) *session.UI {
	for _, ui := range uis {
		if conn, ok := ui.PushConnection().(*Connection); ok && conn.Resource() == res {
			return ui
		}
	}
	return nil
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

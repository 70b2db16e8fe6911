package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	uerrors "github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

const uidlContentType = "application/json; charset=UTF-8"

// InitResponse is the body of a successful POST /init.
type InitResponse struct {
	UIID      int    `json:"v-uiId"`
	CSRFToken string `json:"csrfToken"`
	PushID    string `json:"pushId"`
	UIDL      string `json:"uidl"`
}

// findSession returns the session named by the request cookie.
func (s *Server) findSession(r *http.Request) (*session.Session, error) {
	c, err := r.Cookie(s.config.CookieName)
	if err != nil || c.Value == "" {
		return nil, session.ErrSessionExpired
	}
	return s.sessions.Get(c.Value)
}

// handleInit creates a UI, and a session if the request has none, and
// returns the initial response.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.findSession(r)
	if errors.Is(err, session.ErrSessionExpired) {
		sess, err = s.sessions.Create()
		if err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     s.config.CookieName,
				Value:    sess.ID(),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	if err != nil {
		s.logger.Error("could not create session", "error", err)
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	_, span := s.tracer.Start(r.Context(), "uidl.init",
		trace.WithAttributes(attribute.String("session.id", sess.ID())))
	defer span.End()

	sess.Lock()
	resp, err := s.createUI(sess)
	if uerr := sess.Unlock(); uerr != nil {
		s.logger.Warn("error while unlocking session", "error", uerr)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("could not create ui", "session_id", sess.ID(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	span.SetAttributes(attribute.Int("ui.id", resp.UIID))

	w.Header().Set("Content-Type", uidlContentType)
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("write init response", "error", err)
	}
}

func (s *Server) createUI(sess *session.Session) (*InitResponse, error) {
	ui, err := sess.CreateUI(s.factory)
	if err != nil {
		return nil, err
	}
	if sess.Config().PushMode != session.PushModeDisabled {
		push.NewConnection(ui, s.writer,
			push.WithConnectionLogger(ui.Logger()),
			push.WithConnectionRecorder(s.metrics))
	}

	var buf bytes.Buffer
	if err := s.writer.Write(ui, &buf, false); err != nil {
		sess.RemoveUI(ui.ID())
		return nil, err
	}
	return &InitResponse{
		UIID:      ui.ID(),
		CSRFToken: sess.CSRFToken(),
		PushID:    sess.PushID(),
		UIDL:      uidl.Wrap(buf.Bytes()),
	}, nil
}

// handleUIDL applies one client message and answers with the resulting
// changes.
func (s *Server) handleUIDL(w http.ResponseWriter, r *http.Request) {
	messages := s.config.Deployment.Messages

	sess, err := s.findSession(r)
	if err != nil {
		writeUIDL(w, uidl.SessionExpiredNotification(messages))
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "uidl.request",
		trace.WithAttributes(attribute.String("session.id", sess.ID())))
	defer span.End()

	start := time.Now()
	sess.Lock()
	defer func() {
		sess.RecordRequestTiming(time.Since(start))
		if err := sess.Unlock(); err != nil {
			s.logger.Warn("error while unlocking session", "error", err)
		}
	}()

	ui := sess.FindUI(r)
	if ui == nil {
		writeUIDL(w, uidl.UINotFoundNotification(messages))
		return
	}
	span.SetAttributes(attribute.Int("ui.id", ui.ID()))

	if err := s.rpc.Handle(ui, r.Body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if uerrors.Recoverable(err) {
			s.logger.Warn("refreshing client after rejected message",
				"remote_addr", r.RemoteAddr, "error", err)
			writeUIDL(w, uidl.RefreshNotification())
			return
		}
		sess.HandleError(ui, err)
		writeUIDL(w, uidl.InternalErrorNotification(messages, ""))
		return
	}

	_, assemble := s.tracer.Start(ctx, "uidl.assemble")
	var buf bytes.Buffer
	err = s.writer.Write(ui, &buf, false)
	assemble.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sess.HandleError(ui, err)
		writeUIDL(w, uidl.InternalErrorNotification(messages, ""))
		return
	}
	writeUIDL(w, uidl.Wrap(buf.Bytes()))
}

func writeUIDL(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", uidlContentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, message)
}

// pushTransport returns the transport a push request asks for. A bare
// WebSocket upgrade defaults to the websocket transport.
func pushTransport(r *http.Request) (push.Transport, error) {
	name := r.URL.Query().Get(push.TransportParameter)
	if name == "" && websocket.IsWebSocketUpgrade(r) {
		return push.TransportWebSocket, nil
	}
	return push.ParseTransport(name)
}

// handlePushConnect opens a push channel and holds it until the client, the
// server or a timeout ends it.
func (s *Server) handlePushConnect(w http.ResponseWriter, r *http.Request) {
	if s.config.Deployment.PushMode == session.PushModeDisabled {
		http.Error(w, "Push Not Enabled", http.StatusNotFound)
		return
	}
	t, err := pushTransport(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if t == push.TransportWebSocket {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		res := push.NewWebSocketResource(conn, r, s.config.WebSocket, s.logger)
		s.push.OnConnect(res)
		res.ReadLoop(func(data []byte) {
			s.push.OnMessage(res, bytes.NewReader(data))
		})
		s.push.OnDisconnect(res)
		return
	}

	res := push.NewHTTPResource(w, r, t)
	s.push.OnConnect(res)
	res.Wait(r.Context())
	s.push.OnDisconnect(res)
}

// handlePushMessage takes a client message sent beside a long polling or
// streaming channel. The answer goes out over the channel.
func (s *Server) handlePushMessage(w http.ResponseWriter, r *http.Request) {
	if s.config.Deployment.PushMode == session.PushModeDisabled {
		http.Error(w, "Push Not Enabled", http.StatusNotFound)
		return
	}
	t, err := pushTransport(r)
	if err != nil || t == push.TransportWebSocket {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	res := push.NewHTTPResource(w, r, t)
	s.push.OnMessage(res, r.Body)
	res.Resume()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

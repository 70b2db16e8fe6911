package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	uerrors "github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/rpc"
	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

const labelRPC = "com.example.LabelRpc"

type handlerFixture struct {
	sess    *session.Session
	ui      *session.UI
	conn    *Connection
	h       *Handler
	rec     *fakeRecorder
	errs    []*session.ErrorEvent
	expired bool
}

// newHandlerFixture builds an unlocked session with one UI whose label
// "1" answers setText, after an initial response has been written.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	cfg := session.DefaultDeploymentConfig().WithPushMode(session.PushModeManual)
	cfg.LongPollingSuspendTimeout = 30 * time.Second

	f := &handlerFixture{sess: session.New(cfg, testLogger()), rec: &fakeRecorder{}}
	f.sess.SetErrorHandler(session.ErrorHandlerFunc(func(ev *session.ErrorEvent) {
		f.errs = append(f.errs, ev)
	}))

	writer := uidl.NewWriter(uidl.WithLogger(testLogger()))
	f.sess.Lock()
	ui, err := f.sess.CreateUI(func(ui *session.UI) error {
		label := connector.NewBase("1", widgetType)
		label.RegisterRPC(labelRPC, connector.RPCFuncs{
			"setText": func(params []json.RawMessage) error {
				var text string
				if err := json.Unmarshal(params[0], &text); err != nil {
					return err
				}
				return label.Set("text", text)
			},
		})
		if err := ui.Tracker().Register(connector.NewBase("0", widgetType), ""); err != nil {
			return err
		}
		return ui.Tracker().Register(label, "0")
	})
	if err != nil {
		t.Fatalf("CreateUI() error: %v", err)
	}
	if err := writer.Write(ui, io.Discard, false); err != nil {
		t.Fatalf("initial Write() error: %v", err)
	}
	f.ui = ui
	f.conn = NewConnection(ui, writer, WithConnectionLogger(testLogger()), WithConnectionRecorder(f.rec))
	if err := f.sess.Unlock(); err != nil {
		t.Fatal(err)
	}

	finder := func(*http.Request) (*session.Session, error) {
		if f.expired {
			return nil, session.ErrSessionExpired
		}
		return f.sess, nil
	}
	f.h = NewHandler(finder, rpc.NewHandler(rpc.WithLogger(testLogger())),
		WithLogger(testLogger()),
		WithRecorder(f.rec),
		WithNotificationTimeout(100*time.Millisecond))
	return f
}

// resource returns a fake resource whose request names the fixture's UI
// and push id.
func (f *handlerFixture) resource(t Transport) *fakeResource {
	res := newFakeResource(t)
	q := url.Values{}
	q.Set(session.UIIDParameter, strconv.Itoa(f.ui.ID()))
	q.Set(PushIDParameter, f.sess.PushID())
	q.Set(TransportParameter, string(t))
	res.url = "/PUSH?" + q.Encode()
	return res
}

func (f *handlerFixture) message(cid int, text string) string {
	return fmt.Sprintf(`{"csrfToken":%q,"v-sid":0,"v-cid":%d,"rpc":[["1",%q,"setText",[%q]]]}`,
		f.sess.CSRFToken(), cid, labelRPC, text)
}

func TestHandler_OnConnect(t *testing.T) {
	tests := []struct {
		transport   Transport
		wantSuspend time.Duration
	}{
		{TransportWebSocket, -1},
		{TransportStreaming, -1},
		{TransportLongPolling, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(string(tt.transport), func(t *testing.T) {
			f := newHandlerFixture(t)
			res := f.resource(tt.transport)
			f.h.OnConnect(res)

			if f.conn.Resource() != Resource(res) || !f.conn.IsConnected() {
				t.Fatalf("connection not bound: state %v", f.conn.State())
			}
			if diff := cmp.Diff([]time.Duration{tt.wantSuspend}, res.suspended); diff != "" {
				t.Errorf("suspend mismatch (-want +got):\n%s", diff)
			}
			if len(res.sent) != 0 {
				t.Errorf("sent %q on connect, want nothing", res.sent)
			}
			if f.sess.HasLock() {
				t.Error("session still locked")
			}
		})
	}
}

func TestHandler_OnConnectFlushesLatchedPush(t *testing.T) {
	f := newHandlerFixture(t)
	f.sess.Lock()
	_ = f.conn.Push(true)
	_ = f.sess.Unlock()

	res := f.resource(TransportWebSocket)
	f.h.OnConnect(res)
	if len(res.sent) != 1 || !strings.Contains(res.sent[0], `"async":true`) {
		t.Fatalf("sent = %q, want the latched async push", res.sent)
	}
}

func TestHandler_OnConnectInvalidPushID(t *testing.T) {
	for _, id := range []string{"", "wrong"} {
		t.Run("id="+id, func(t *testing.T) {
			f := newHandlerFixture(t)
			res := f.resource(TransportWebSocket)
			res.url = strings.Replace(res.url,
				PushIDParameter+"="+url.QueryEscape(f.sess.PushID()),
				PushIDParameter+"="+id, 1)

			f.h.OnConnect(res)

			if f.conn.IsConnected() {
				t.Error("connection bound despite the invalid push id")
			}
			if diff := cmp.Diff([]string{uidl.RefreshNotification()}, res.sent); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
			if !res.resumed {
				t.Error("resource not resumed after the refresh notification")
			}
			if diff := cmp.Diff([]string{NotificationRefresh}, f.rec.notifications); diff != "" {
				t.Errorf("notifications mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandler_CriticalNotifications(t *testing.T) {
	t.Run("session expired", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.expired = true
		res := f.resource(TransportLongPolling)
		f.h.OnConnect(res)

		want := uidl.SessionExpiredNotification(session.DefaultSystemMessages())
		if diff := cmp.Diff([]string{want}, res.sent); diff != "" {
			t.Errorf("sent mismatch (-want +got):\n%s", diff)
		}
		if !res.resumed {
			t.Error("resource not resumed")
		}
	})

	t.Run("ui not found", func(t *testing.T) {
		f := newHandlerFixture(t)
		res := f.resource(TransportWebSocket)
		res.url = strings.Replace(res.url, session.UIIDParameter+"="+strconv.Itoa(f.ui.ID()), session.UIIDParameter+"=99", 1)
		f.h.OnMessage(res, strings.NewReader("2|{}"))

		want := uidl.UINotFoundNotification(f.sess.Config().Messages)
		if diff := cmp.Diff([]string{want}, res.sent); diff != "" {
			t.Errorf("sent mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{NotificationUINotFound}, f.rec.notifications); diff != "" {
			t.Errorf("notifications mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("already resumed resource is skipped", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.expired = true
		res := f.resource(TransportLongPolling)
		res.resumed = true
		f.h.OnConnect(res)
		if len(res.sent) != 0 || len(f.rec.notifications) != 0 {
			t.Errorf("sent %q to a resumed resource", res.sent)
		}
	})
}

func TestHandler_OnMessage(t *testing.T) {
	f := newHandlerFixture(t)
	res := f.resource(TransportWebSocket)
	f.h.OnConnect(res)

	// A message split over two frames only applies once complete.
	framed := Frame(f.message(1, "changed"))
	f.h.OnMessage(res, strings.NewReader(framed[:10]))
	if len(res.sent) != 0 {
		t.Fatalf("partial frame produced %q", res.sent)
	}
	f.h.OnMessage(res, strings.NewReader(framed[10:]))

	if len(res.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(res.sent))
	}
	msg := res.sent[0]
	if !strings.HasPrefix(msg, uidl.Guard+"[") {
		t.Errorf("response %q lacks the guard", msg)
	}
	for _, want := range []string{`"clientId":2`, `"text":"changed"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("response %s lacks %s", msg, want)
		}
	}
	if strings.Contains(msg, `"async":true`) {
		t.Error("response to a client message marked async")
	}
	if f.rec.received != 2 || f.rec.sent != 1 {
		t.Errorf("received=%d sent=%d, want 2 and 1", f.rec.received, f.rec.sent)
	}
}

func TestHandler_OnMessageLongPolling(t *testing.T) {
	f := newHandlerFixture(t)
	poll := f.resource(TransportLongPolling)
	f.h.OnConnect(poll)

	post := f.resource(TransportLongPolling)
	f.h.OnMessage(post, strings.NewReader(f.message(1, "polled")))

	if len(poll.sent) != 1 || !strings.Contains(poll.sent[0], `"text":"polled"`) {
		t.Fatalf("long poll got %q, want the response", poll.sent)
	}
	if len(post.sent) != 0 {
		t.Errorf("message request got %q, want nothing", post.sent)
	}
}

func TestHandler_OnMessageRefreshes(t *testing.T) {
	tests := []struct {
		name string
		body func(f *handlerFixture) string
	}{
		{"bad security key", func(f *handlerFixture) string {
			return Frame(strings.Replace(f.message(1, "x"), f.sess.CSRFToken(), "forged", 1))
		}},
		{"malformed fragment", func(*handlerFixture) string { return "no prefix" }},
		{"malformed json", func(*handlerFixture) string { return Frame("{not json") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			res := f.resource(TransportWebSocket)
			f.h.OnConnect(res)

			f.h.OnMessage(res, strings.NewReader(tt.body(f)))

			if diff := cmp.Diff([]string{uidl.RefreshNotification()}, res.sent); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
			if !res.resumed {
				t.Error("resource not resumed")
			}
			if c, _ := f.ui.Tracker().Connector("1"); c.(*connector.Base).Get("text") == "x" {
				t.Error("rejected message was applied")
			}
			if len(f.errs) != 0 {
				t.Errorf("error handler called %d times, want 0", len(f.errs))
			}
		})
	}
}

func TestHandler_InternalError(t *testing.T) {
	f := newHandlerFixture(t)

	// A UI without a push connection cannot take push messages.
	f.sess.Lock()
	other, err := f.sess.CreateUI(nil)
	_ = f.sess.Unlock()
	if err != nil {
		t.Fatal(err)
	}

	res := f.resource(TransportWebSocket)
	res.url = strings.Replace(res.url, session.UIIDParameter+"="+strconv.Itoa(f.ui.ID()), session.UIIDParameter+"="+strconv.Itoa(other.ID()), 1)
	f.h.OnConnect(res)

	want := uidl.InternalErrorNotification(f.sess.Config().Messages, "")
	if diff := cmp.Diff([]string{want}, res.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if len(f.errs) != 1 {
		t.Fatalf("error handler called %d times, want 1", len(f.errs))
	}
	if !errors.Is(f.errs[0].Err, uerrors.New("U031")) {
		t.Errorf("handled error = %v, want U031", f.errs[0].Err)
	}
	if f.errs[0].UI != other {
		t.Error("error not attributed to the UI")
	}
}

func TestHandler_OnDisconnect(t *testing.T) {
	t.Run("by request", func(t *testing.T) {
		f := newHandlerFixture(t)
		res := f.resource(TransportWebSocket)
		f.h.OnConnect(res)
		f.h.OnDisconnect(res)

		if f.conn.IsConnected() {
			t.Error("connection still bound")
		}
		if res.closed != 0 {
			t.Error("a lost resource should not be closed")
		}
		if f.rec.closed != 1 {
			t.Errorf("closed = %d, want 1", f.rec.closed)
		}
	})

	t.Run("by resource", func(t *testing.T) {
		f := newHandlerFixture(t)
		res := f.resource(TransportStreaming)
		f.h.OnConnect(res)
		res.url = "/PUSH"
		f.h.OnDisconnect(res)

		if f.conn.IsConnected() {
			t.Error("connection found by its resource should be dropped")
		}
	})

	t.Run("stale resource", func(t *testing.T) {
		f := newHandlerFixture(t)
		current := f.resource(TransportWebSocket)
		f.h.OnConnect(current)

		f.h.OnDisconnect(f.resource(TransportWebSocket))
		if f.conn.Resource() != Resource(current) {
			t.Error("disconnect of a stale resource dropped the current one")
		}
	})

	t.Run("session expired", func(t *testing.T) {
		f := newHandlerFixture(t)
		res := f.resource(TransportWebSocket)
		f.h.OnConnect(res)
		f.expired = true
		f.h.OnDisconnect(res)

		if !f.conn.IsConnected() {
			t.Error("expired session should leave the connection alone")
		}
		if len(f.errs) != 0 {
			t.Errorf("error handler called %d times", len(f.errs))
		}
	})
}

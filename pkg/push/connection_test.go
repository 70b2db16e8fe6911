package push

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/session"
	"github.com/vango-dev/uidl/pkg/uidl"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var widgetType = connector.NewType("com.example.Widget", nil)

// fakeResource records what the connection does with it. With hold set,
// sends never complete.
type fakeResource struct {
	id        string
	transport Transport
	url       string
	hold      bool

	sent      []string
	suspended []time.Duration
	resumed   bool
	closed    int
}

var resourceSeq int

func newFakeResource(t Transport) *fakeResource {
	resourceSeq++
	return &fakeResource{id: fmt.Sprintf("res-%d", resourceSeq), transport: t, url: "/PUSH"}
}

func (f *fakeResource) UUID() string         { return f.id }
func (f *fakeResource) Transport() Transport { return f.transport }
func (f *fakeResource) Request() *http.Request {
	return httptest.NewRequest("GET", f.url, nil)
}

func (f *fakeResource) Send(message string) <-chan error {
	if f.resumed {
		return completed(ErrResourceClosed)
	}
	f.sent = append(f.sent, message)
	if f.hold {
		return make(chan error)
	}
	return completed(nil)
}

func (f *fakeResource) Suspend(timeout time.Duration) { f.suspended = append(f.suspended, timeout) }
func (f *fakeResource) Resume()                       { f.resumed = true }
func (f *fakeResource) IsResumed() bool               { return f.resumed }
func (f *fakeResource) Close() error {
	f.closed++
	f.resumed = true
	return nil
}

type fakeRecorder struct {
	opened, closed, received, sent int
	notifications                  []string
}

func (r *fakeRecorder) ConnectionOpened(Transport)   { r.opened++ }
func (r *fakeRecorder) ConnectionClosed(Transport)   { r.closed++ }
func (r *fakeRecorder) MessageReceived(Transport)    { r.received++ }
func (r *fakeRecorder) MessageSent(Transport)        { r.sent++ }
func (r *fakeRecorder) NotificationSent(kind string) { r.notifications = append(r.notifications, kind) }

// newTestUI returns a locked session holding one UI with a root "0" and a
// label "1".
func newTestUI(t *testing.T, cfg *session.DeploymentConfig) (*session.Session, *session.UI, *connector.Base) {
	t.Helper()
	sess := session.New(cfg, testLogger())
	sess.Lock()
	t.Cleanup(func() { _ = sess.Unlock() })

	label := connector.NewBase("1", widgetType)
	ui, err := sess.CreateUI(func(ui *session.UI) error {
		if err := ui.Tracker().Register(connector.NewBase("0", widgetType), ""); err != nil {
			return err
		}
		_ = label.Set("text", "Hello")
		return ui.Tracker().Register(label, "0")
	})
	if err != nil {
		t.Fatalf("CreateUI() error: %v", err)
	}
	return sess, ui, label
}

func newTestConnection(t *testing.T, opts ...ConnectionOption) (*Connection, *connector.Base) {
	t.Helper()
	_, ui, label := newTestUI(t, nil)
	opts = append([]ConnectionOption{WithConnectionLogger(testLogger())}, opts...)
	return NewConnection(ui, uidl.NewWriter(uidl.WithLogger(testLogger())), opts...), label
}

func TestNewConnection(t *testing.T) {
	c, _ := newTestConnection(t)
	if c.State() != StateDisconnected || c.Resource() != nil {
		t.Fatalf("new connection: state %v resource %v", c.State(), c.Resource())
	}
	if c.UI().PushConnection() != c {
		t.Error("NewConnection should bind itself to the UI")
	}
}

func TestConnection_LatchAndFlush(t *testing.T) {
	tests := []struct {
		name      string
		pushes    []bool
		wantState State
		wantAsync bool
	}{
		{"async", []bool{true}, StatePushPending, true},
		{"response", []bool{false}, StateResponsePending, false},
		{"response absorbs async", []bool{false, true}, StateResponsePending, false},
		{"async upgraded to response", []bool{true, false}, StateResponsePending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestConnection(t)
			for _, async := range tt.pushes {
				if err := c.Push(async); err != nil {
					t.Fatalf("Push(%t) error: %v", async, err)
				}
			}
			if c.State() != tt.wantState {
				t.Fatalf("state after pushes = %v, want %v", c.State(), tt.wantState)
			}

			res := newFakeResource(TransportWebSocket)
			if err := c.Connect(res); err != nil {
				t.Fatalf("Connect() error: %v", err)
			}
			if c.State() != StateConnected {
				t.Fatalf("state after connect = %v", c.State())
			}
			if len(res.sent) != 1 {
				t.Fatalf("sent %d messages on connect, want 1", len(res.sent))
			}
			msg := res.sent[0]
			if !strings.HasPrefix(msg, uidl.Guard+"[{") {
				t.Errorf("message %q lacks the guard prefix", msg)
			}
			if got := strings.Contains(msg, `"async":true`); got != tt.wantAsync {
				t.Errorf("async flag present = %t, want %t in %s", got, tt.wantAsync, msg)
			}
		})
	}
}

func TestConnection_ConnectWithoutLatch(t *testing.T) {
	c, label := newTestConnection(t)
	res := newFakeResource(TransportWebSocket)
	if err := c.Connect(res); err != nil {
		t.Fatal(err)
	}
	if len(res.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(res.sent))
	}

	_ = label.Set("text", "World")
	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if len(res.sent) != 1 || !strings.Contains(res.sent[0], `"text":"World"`) {
		t.Fatalf("sent = %q", res.sent)
	}
}

func TestConnection_ReplaceResource(t *testing.T) {
	rec := &fakeRecorder{}
	c, _ := newTestConnection(t, WithConnectionRecorder(rec))
	a := newFakeResource(TransportWebSocket)
	b := newFakeResource(TransportWebSocket)

	_ = c.Connect(a)
	_ = c.Connect(a)
	if rec.opened != 1 {
		t.Errorf("reconnecting the same resource opened %d, want 1", rec.opened)
	}

	_ = c.Connect(b)
	if a.closed != 1 {
		t.Errorf("old resource closed %d times, want 1", a.closed)
	}
	if c.Resource() != b {
		t.Error("new resource not bound")
	}
	if diff := cmp.Diff([2]int{2, 1}, [2]int{rec.opened, rec.closed}); diff != "" {
		t.Errorf("opened/closed mismatch (-want +got):\n%s", diff)
	}
}

func TestConnection_Disconnect(t *testing.T) {
	t.Run("closes resource", func(t *testing.T) {
		c, _ := newTestConnection(t)
		res := newFakeResource(TransportWebSocket)
		_ = c.Connect(res)
		c.Disconnect()
		if res.closed != 1 || c.State() != StateDisconnected || c.Resource() != nil {
			t.Fatalf("closed=%d state=%v", res.closed, c.State())
		}
	})

	t.Run("not connected", func(t *testing.T) {
		c, _ := newTestConnection(t)
		_ = c.Push(true)
		c.Disconnect()
		if c.State() != StatePushPending {
			t.Fatalf("state = %v, want push pending kept", c.State())
		}
	})

	t.Run("resumed resource is not closed", func(t *testing.T) {
		c, _ := newTestConnection(t)
		res := newFakeResource(TransportLongPolling)
		_ = c.Connect(res)
		res.resumed = true
		c.Disconnect()
		if res.closed != 0 {
			t.Errorf("resumed resource closed %d times", res.closed)
		}
		if c.State() != StateDisconnected {
			t.Errorf("state = %v", c.State())
		}
	})

	t.Run("drain timeout", func(t *testing.T) {
		c, _ := newTestConnection(t, WithDrainTimeout(20*time.Millisecond))
		res := newFakeResource(TransportWebSocket)
		res.hold = true
		_ = c.Connect(res)
		if err := c.Push(true); err != nil {
			t.Fatal(err)
		}

		start := time.Now()
		c.Disconnect()
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("Disconnect returned after %v, want at least the drain timeout", elapsed)
		}
		if res.closed != 1 {
			t.Errorf("closed = %d, want 1", res.closed)
		}
	})
}

func TestConnection_PushOnResumedResource(t *testing.T) {
	c, _ := newTestConnection(t)
	poll := newFakeResource(TransportLongPolling)
	_ = c.Connect(poll)
	poll.resumed = true

	if err := c.Push(true); err != nil {
		t.Fatal(err)
	}
	if c.State() != StatePushPending || len(poll.sent) != 0 {
		t.Fatalf("state = %v sent = %d, want latched push", c.State(), len(poll.sent))
	}

	next := newFakeResource(TransportLongPolling)
	_ = c.Connect(next)
	if len(next.sent) != 1 {
		t.Fatalf("latched push not flushed on reconnect")
	}
}

func TestConnection_ReceiveMessage(t *testing.T) {
	c, _ := newTestConnection(t)

	r, err := c.ReceiveMessage(TransportLongPolling, strings.NewReader(`{"rpc":[]}`))
	if err != nil || readAll(t, r) != `{"rpc":[]}` {
		t.Fatalf("long polling message not passed through: %v", err)
	}

	r, err = c.ReceiveMessage(TransportWebSocket, strings.NewReader("4|ab"))
	if err != nil || r != nil {
		t.Fatalf("partial frame = %v, %v", r, err)
	}
	r, err = c.ReceiveMessage(TransportWebSocket, strings.NewReader("cd"))
	if err != nil || readAll(t, r) != "abcd" {
		t.Fatalf("completed frame error: %v", err)
	}

	_, _ = c.ReceiveMessage(TransportWebSocket, strings.NewReader("10|ab"))
	c.ConnectionLost()
	r, err = c.ReceiveMessage(TransportWebSocket, strings.NewReader("2|ok"))
	if err != nil || readAll(t, r) != "ok" {
		t.Fatal("connection lost should discard a partial message")
	}
}

// TestConnection_Invariants drives random event sequences and checks the
// connection against the pure transition function.
func TestConnection_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		c, label := newTestConnection(t)
		model := StateDisconnected
		var bound *fakeResource
		sent := 0

		for step := 0; step < 40; step++ {
			var action Action
			switch rng.Intn(5) {
			case 0, 1:
				async := rng.Intn(2) == 0
				_ = label.Set("n", step)
				ev := EventPushAsync
				if !async {
					ev = EventPushResponse
				}
				model, action = Transition(model, ev)
				if err := c.Push(async); err != nil {
					t.Fatalf("run %d step %d: Push error: %v", run, step, err)
				}
			case 2:
				res := newFakeResource(TransportWebSocket)
				if bound != nil {
					model = StateDisconnected
				}
				model, action = Transition(model, EventConnect)
				if err := c.Connect(res); err != nil {
					t.Fatalf("run %d step %d: Connect error: %v", run, step, err)
				}
				bound, sent = res, 0
			case 3:
				if model == StateConnected {
					model, _ = Transition(model, EventDisconnect)
				}
				c.Disconnect()
				bound = nil
			case 4:
				model, _ = Transition(model, EventConnectionLost)
				c.ConnectionLost()
				bound = nil
			}

			if c.State() != model {
				t.Fatalf("run %d step %d: state = %v, want %v", run, step, c.State(), model)
			}
			if (c.State() == StateConnected) != (c.Resource() != nil) {
				t.Fatalf("run %d step %d: connected=%v resource=%v", run, step, c.State(), c.Resource())
			}
			switch action {
			case ActionSend, ActionFlushAsync, ActionFlushResponse:
				sent++
			}
			if bound != nil && len(bound.sent) != sent {
				t.Fatalf("run %d step %d: resource got %d messages, want %d", run, step, len(bound.sent), sent)
			}
		}
	}
}

package push

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPResource_LongPolling(t *testing.T) {
	w := httptest.NewRecorder()
	res := NewHTTPResource(w, httptest.NewRequest("GET", "/PUSH", nil), TransportLongPolling)
	res.Suspend(-1)

	if res.IsResumed() {
		t.Fatal("resource resumed before any message")
	}
	if err := <-res.Send("for(;;);[{}]"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !res.IsResumed() {
		t.Error("long polling resource should resume after one message")
	}
	if got := w.Body.String(); got != "for(;;);[{}]" {
		t.Errorf("body = %q", got)
	}
	if err := <-res.Send("second"); !errors.Is(err, ErrResourceClosed) {
		t.Errorf("Send after resume error = %v, want ErrResourceClosed", err)
	}
	select {
	case <-res.Done():
	default:
		t.Error("Done not closed after resume")
	}
}

func TestHTTPResource_Streaming(t *testing.T) {
	w := httptest.NewRecorder()
	res := NewHTTPResource(w, httptest.NewRequest("GET", "/PUSH", nil), TransportStreaming)
	res.Suspend(-1)

	for _, msg := range []string{"for(;;);[{}]", "for(;;);[{\"a\":1}]"} {
		if err := <-res.Send(msg); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}
	if res.IsResumed() {
		t.Error("streaming resource should stay open")
	}
	want := "12|for(;;);[{}]17|for(;;);[{\"a\":1}]"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if got := w.Header().Get("Connection"); got != "close" {
		t.Errorf("Connection header = %q, want close", got)
	}
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=UTF-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if !w.Flushed {
		t.Error("response not flushed")
	}
}

func TestHTTPResource_SuspendTimeout(t *testing.T) {
	res := NewHTTPResource(httptest.NewRecorder(), httptest.NewRequest("GET", "/PUSH", nil), TransportLongPolling)
	res.Suspend(10 * time.Millisecond)

	select {
	case <-res.Done():
	case <-time.After(time.Second):
		t.Fatal("suspend timeout did not resume the resource")
	}
}

func TestHTTPResource_Wait(t *testing.T) {
	res := NewHTTPResource(httptest.NewRecorder(), httptest.NewRequest("GET", "/PUSH", nil), TransportStreaming)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res.Wait(ctx)
	if !res.IsResumed() {
		t.Error("Wait should resume the resource when the context ends")
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"websocket", TransportWebSocket, false},
		{"LONG-POLLING", TransportLongPolling, false},
		{" streaming ", TransportStreaming, false},
		{"sse", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTransport(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTransport(%q) = %q, %v", tt.in, got, err)
		}
		if tt.wantErr && !errors.Is(err, ErrUnknownTransport) {
			t.Errorf("ParseTransport(%q) error = %v, want ErrUnknownTransport", tt.in, err)
		}
	}
}

package push

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HTTPResource is a push resource over a held HTTP response, used by the
// long-polling and streaming transports.
//
// A long-polling resource carries one message and is resumed after it.
// A streaming resource writes each message framed as <len>|message and
// stays open.
type HTTPResource struct {
	id        string
	transport Transport
	w         http.ResponseWriter
	req       *http.Request

	mu      sync.Mutex
	resumed bool
	timer   *time.Timer
	done    chan struct{}
}

// NewHTTPResource prepares w for push messages.
func NewHTTPResource(w http.ResponseWriter, r *http.Request, t Transport) *HTTPResource {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=UTF-8")
	h.Set("Cache-Control", "no-cache")
	if t == TransportStreaming {
		// Clients must not reuse a streaming connection for other
		// requests.
		h.Set("Connection", "close")
	}
	return &HTTPResource{
		id:        uuid.NewString(),
		transport: t,
		w:         w,
		req:       r,
		done:      make(chan struct{}),
	}
}

// UUID implements Resource.
func (h *HTTPResource) UUID() string { return h.id }

// Transport implements Resource.
func (h *HTTPResource) Transport() Transport { return h.transport }

// Request implements Resource.
func (h *HTTPResource) Request() *http.Request { return h.req }

// Send implements Resource. The write completes before Send returns.
func (h *HTTPResource) Send(message string) <-chan error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resumed {
		return completed(ErrResourceClosed)
	}
	if h.transport == TransportStreaming {
		message = Frame(message)
	}
	if _, err := io.WriteString(h.w, message); err != nil {
		h.resumeLocked()
		return completed(err)
	}
	if f, ok := h.w.(http.Flusher); ok {
		f.Flush()
	}
	if h.transport == TransportLongPolling {
		h.resumeLocked()
	}
	return completed(nil)
}

// Suspend implements Resource.
func (h *HTTPResource) Suspend(timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.resumed {
		return
	}
	if f, ok := h.w.(http.Flusher); ok {
		h.w.WriteHeader(http.StatusOK)
		f.Flush()
	}
	if timeout > 0 {
		if h.timer != nil {
			h.timer.Stop()
		}
		h.timer = time.AfterFunc(timeout, h.Resume)
	}
}

// Resume implements Resource.
func (h *HTTPResource) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumeLocked()
}

func (h *HTTPResource) resumeLocked() {
	if h.resumed {
		return
	}
	h.resumed = true
	if h.timer != nil {
		h.timer.Stop()
	}
	close(h.done)
}

// IsResumed implements Resource.
func (h *HTTPResource) IsResumed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumed
}

// Close implements Resource.
func (h *HTTPResource) Close() error {
	h.Resume()
	return nil
}

// Done is closed once the resource is resumed.
func (h *HTTPResource) Done() <-chan struct{} { return h.done }

// Wait blocks until the resource is resumed or ctx is done. In the
// latter case the resource is resumed so no later send touches the
// finished response.
func (h *HTTPResource) Wait(ctx context.Context) {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Resume()
	}
}

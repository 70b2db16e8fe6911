package push

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for push resources.
var (
	// ErrResourceClosed is returned by sends on a closed or resumed
	// resource.
	ErrResourceClosed = errors.New("push: resource closed")

	// ErrUnknownTransport is returned by ParseTransport.
	ErrUnknownTransport = errors.New("push: unknown transport")
)

// TransportParameter is the query parameter naming the transport.
const TransportParameter = "X-Atmosphere-Transport"

// PushIDParameter is the query parameter carrying the session push id.
const PushIDParameter = "v-pushId"

// Transport is a push transport.
type Transport string

const (
	TransportWebSocket   Transport = "websocket"
	TransportLongPolling Transport = "long-polling"
	TransportStreaming   Transport = "streaming"
)

// ParseTransport parses a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportWebSocket, TransportLongPolling, TransportStreaming:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
}

// Resource is one open push channel to the client.
type Resource interface {
	// UUID identifies the resource.
	UUID() string

	// Transport returns the transport the resource uses.
	Transport() Transport

	// Request returns the request that opened the resource.
	Request() *http.Request

	// Send queues a complete wire message. The returned channel receives
	// the outcome once the message has been written. Messages complete
	// in the order they were sent.
	Send(message string) <-chan error

	// Suspend keeps the resource open. A positive timeout resumes it when
	// the timeout expires; otherwise it stays open until resumed.
	Suspend(timeout time.Duration)

	// Resume completes the underlying exchange. Nothing can be sent
	// afterwards.
	Resume()

	// IsResumed reports whether the resource has been resumed or closed,
	// either by the server or by the transport.
	IsResumed() bool

	// Close closes the resource.
	Close() error
}

func completed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/rpc"
)

func TestMetrics_Recorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test", nil)

	m.ResponseWritten(time.Millisecond, 512, true)
	m.ResponseWritten(time.Millisecond, 128, false)
	m.ResponseWritten(time.Millisecond, 128, false)
	m.InvocationHandled(rpc.OutcomeApplied)
	m.InvocationHandled(rpc.OutcomeDisabled)
	m.Resynchronized(rpc.ResyncGap)
	m.ConnectionOpened(push.TransportWebSocket)
	m.ConnectionOpened(push.TransportWebSocket)
	m.ConnectionClosed(push.TransportWebSocket)
	m.MessageReceived(push.TransportStreaming)
	m.MessageSent(push.TransportStreaming)
	m.NotificationSent(push.NotificationRefresh)

	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		`test_responses_total{resynchronize="true"} 1`,
		`test_responses_total{resynchronize="false"} 2`,
		`test_response_bytes_count 3`,
		`test_rpc_invocations_total{outcome="applied"} 1`,
		`test_rpc_invocations_total{outcome="disabled"} 1`,
		`test_resyncs_total{reason="gap"} 1`,
		`test_push_connections{transport="websocket"} 1`,
		`test_push_messages_total{direction="in",transport="streaming"} 1`,
		`test_push_messages_total{direction="out",transport="streaming"} 1`,
		`test_push_notifications_total{kind="refresh"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics lack %q", want)
		}
	}
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://example.com", "example.com", true},
		{"https://example.com:8443", "example.com:8443", true},
		{"http://evil.com", "example.com", false},
		{"::bad", "example.com", false},
	}
	for _, tt := range tests {
		r := httptestRequest(tt.host, tt.origin)
		if got := SameOriginCheck(r); got != tt.want {
			t.Errorf("SameOriginCheck(origin=%q host=%q) = %t, want %t", tt.origin, tt.host, got, tt.want)
		}
	}
}

func httptestRequest(host, origin string) *http.Request {
	r := httptest.NewRequest("GET", "/PUSH", nil)
	r.Host = host
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/session"
)

// DefaultCookieName is the session cookie.
const DefaultCookieName = "UIDLSESSIONID"

// Config holds server settings.
type Config struct {
	// Address is the listen address.
	// Default: ":8080".
	Address string

	// Deployment is shared by every session.
	// Default: session.DefaultDeploymentConfig().
	Deployment *session.DeploymentConfig

	// ReadBufferSize and WriteBufferSize size the WebSocket upgrader.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates WebSocket upgrade origins.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// WebSocket holds push WebSocket timeouts.
	WebSocket push.WebSocketConfig

	// CookieName names the session cookie.
	// Default: DefaultCookieName.
	CookieName string

	// MaxSessions caps live sessions. 0 means no limit.
	MaxSessions int

	// CleanupInterval is how often expired sessions are removed.
	// Default: 30 seconds.
	CleanupInterval time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout and IdleTimeout configure the http.Server.
	// Push requests are long lived, so there is no write timeout.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// MetricsNamespace prefixes every metric.
	// Default: "uidl".
	MetricsNamespace string

	// Registry receives the server metrics and backs /metrics.
	// Default: a new registry per server.
	Registry *prometheus.Registry

	// Tracer traces requests and push events.
	// Default: the global otel tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		Deployment:        session.DefaultDeploymentConfig(),
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		WebSocket:         push.DefaultWebSocketConfig(),
		CookieName:        DefaultCookieName,
		CleanupInterval:   30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MetricsNamespace:  "uidl",
	}
}

// applyDefaults fills unset fields from DefaultConfig.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.Deployment == nil {
		c.Deployment = d.Deployment
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.WebSocket == (push.WebSocketConfig{}) {
		c.WebSocket = d.WebSocket
	}
	if c.CookieName == "" {
		c.CookieName = d.CookieName
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = d.MetricsNamespace
	}
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.MaxSessions < 0 {
		return fmt.Errorf("server: max sessions must not be negative, got %d", c.MaxSessions)
	}
	if c.WebSocket.PingInterval > 0 && c.WebSocket.ReadTimeout > 0 && c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("server: websocket ping interval %v must be shorter than read timeout %v",
			c.WebSocket.PingInterval, c.WebSocket.ReadTimeout)
	}
	return nil
}

// SameOriginCheck accepts WebSocket upgrades whose Origin matches the
// request host, and requests without an Origin header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}

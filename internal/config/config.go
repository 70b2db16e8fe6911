package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/server"
	"github.com/vango-dev/uidl/pkg/session"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "uidl.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultSessionTimeout is the default idle session timeout.
	DefaultSessionTimeout = "30m"
)

// Config represents the complete uidl.json configuration.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `json:"server"`

	// Deployment contains protocol settings shared by all sessions.
	Deployment DeploymentConfig `json:"deployment"`

	// WebSocket contains push WebSocket timeouts.
	WebSocket WebSocketConfig `json:"websocket"`

	// Messages overrides the critical notification texts.
	Messages *MessagesConfig `json:"messages,omitempty"`

	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address          string `json:"address,omitempty"`
	CookieName       string `json:"cookieName,omitempty"`
	MaxSessions      int    `json:"maxSessions,omitempty"`
	ShutdownTimeout  string `json:"shutdownTimeout,omitempty"`
	CleanupInterval  string `json:"cleanupInterval,omitempty"`
	MetricsNamespace string `json:"metricsNamespace,omitempty"`
}

// DeploymentConfig contains protocol settings. Unset booleans keep their
// defaults.
type DeploymentConfig struct {
	ProductionMode            bool   `json:"productionMode,omitempty"`
	SyncIDCheck               *bool  `json:"syncIdCheck,omitempty"`
	XSRFProtection            *bool  `json:"xsrfProtection,omitempty"`
	PushMode                  string `json:"pushMode,omitempty"`
	LongPollingSuspendTimeout string `json:"longPollingSuspendTimeout,omitempty"`
	SessionTimeout            string `json:"sessionTimeout,omitempty"`
	HeartbeatInterval         string `json:"heartbeatInterval,omitempty"`
	Version                   string `json:"version,omitempty"`
}

// WebSocketConfig contains push WebSocket timeouts.
type WebSocketConfig struct {
	WriteTimeout   string `json:"writeTimeout,omitempty"`
	ReadTimeout    string `json:"readTimeout,omitempty"`
	PingInterval   string `json:"pingInterval,omitempty"`
	MaxMessageSize int64  `json:"maxMessageSize,omitempty"`
}

// MessagesConfig contains critical notification texts.
type MessagesConfig struct {
	SessionExpiredCaption      string `json:"sessionExpiredCaption"`
	SessionExpiredMessage      string `json:"sessionExpiredMessage"`
	SessionExpiredURL          string `json:"sessionExpiredUrl"`
	SessionExpiredNotification bool   `json:"sessionExpiredNotification"`
	InternalErrorCaption       string `json:"internalErrorCaption"`
	InternalErrorMessage       string `json:"internalErrorMessage"`
	InternalErrorURL           string `json:"internalErrorUrl"`
	InternalErrorNotification  bool   `json:"internalErrorNotification"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from the specified directory.
// It looks for uidl.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("U050").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run without --config to use defaults")
		}
		return nil, errors.New("U051").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("U051").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.CookieName == "" {
		c.Server.CookieName = server.DefaultCookieName
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "30s"
	}
	if c.Server.CleanupInterval == "" {
		c.Server.CleanupInterval = "30s"
	}
	if c.Server.MetricsNamespace == "" {
		c.Server.MetricsNamespace = "uidl"
	}

	if c.Deployment.PushMode == "" {
		c.Deployment.PushMode = session.PushModeDisabled.String()
	}
	if c.Deployment.SessionTimeout == "" {
		c.Deployment.SessionTimeout = DefaultSessionTimeout
	}

	ws := push.DefaultWebSocketConfig()
	if c.WebSocket.WriteTimeout == "" {
		c.WebSocket.WriteTimeout = ws.WriteTimeout.String()
	}
	if c.WebSocket.ReadTimeout == "" {
		c.WebSocket.ReadTimeout = ws.ReadTimeout.String()
	}
	if c.WebSocket.PingInterval == "" {
		c.WebSocket.PingInterval = ws.PingInterval.String()
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = ws.MaxMessageSize
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.MaxSessions < 0 {
		return errors.New("U052").WithDetail("server.maxSessions must not be negative")
	}
	if _, err := session.ParsePushMode(c.Deployment.PushMode); err != nil {
		return errors.New("U052").
			WithDetail("deployment.pushMode: " + err.Error()).
			WithSuggestion("Use one of disabled, manual, automatic")
	}
	for _, d := range c.durations() {
		if *d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(*d.value); err != nil {
			return errors.New("U052").
				WithDetail(d.name + ": " + err.Error()).
				WithSuggestion("Durations look like 30s, 5m or 1h")
		}
	}
	return nil
}

type durationField struct {
	name  string
	value *string
}

func (c *Config) durations() []durationField {
	return []durationField{
		{"server.shutdownTimeout", &c.Server.ShutdownTimeout},
		{"server.cleanupInterval", &c.Server.CleanupInterval},
		{"deployment.longPollingSuspendTimeout", &c.Deployment.LongPollingSuspendTimeout},
		{"deployment.sessionTimeout", &c.Deployment.SessionTimeout},
		{"deployment.heartbeatInterval", &c.Deployment.HeartbeatInterval},
		{"websocket.writeTimeout", &c.WebSocket.WriteTimeout},
		{"websocket.readTimeout", &c.WebSocket.ReadTimeout},
		{"websocket.pingInterval", &c.WebSocket.PingInterval},
	}
}

// duration parses a validated duration, returning fallback when unset.
func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SessionDeployment projects the configuration onto a deployment config.
func (c *Config) SessionDeployment() *session.DeploymentConfig {
	d := session.DefaultDeploymentConfig()
	d.ProductionMode = c.Deployment.ProductionMode
	if c.Deployment.SyncIDCheck != nil {
		d.SyncIDCheckEnabled = *c.Deployment.SyncIDCheck
	}
	if c.Deployment.XSRFProtection != nil {
		d.XSRFProtectionEnabled = *c.Deployment.XSRFProtection
	}
	if mode, err := session.ParsePushMode(c.Deployment.PushMode); err == nil {
		d.PushMode = mode
	}
	d.LongPollingSuspendTimeout = duration(c.Deployment.LongPollingSuspendTimeout, d.LongPollingSuspendTimeout)
	d.SessionTimeout = duration(c.Deployment.SessionTimeout, d.SessionTimeout)
	d.HeartbeatInterval = duration(c.Deployment.HeartbeatInterval, d.HeartbeatInterval)
	if c.Deployment.Version != "" {
		d.Version = c.Deployment.Version
	}
	if m := c.Messages; m != nil {
		d.Messages = session.SystemMessages{
			SessionExpiredCaption:             m.SessionExpiredCaption,
			SessionExpiredMessage:             m.SessionExpiredMessage,
			SessionExpiredURL:                 m.SessionExpiredURL,
			SessionExpiredNotificationEnabled: m.SessionExpiredNotification,
			InternalErrorCaption:              m.InternalErrorCaption,
			InternalErrorMessage:              m.InternalErrorMessage,
			InternalErrorURL:                  m.InternalErrorURL,
			InternalErrorNotificationEnabled:  m.InternalErrorNotification,
		}
	}
	return d
}

// ServerConfig projects the configuration onto a server config.
func (c *Config) ServerConfig() *server.Config {
	s := server.DefaultConfig()
	s.Address = c.Server.Address
	s.CookieName = c.Server.CookieName
	s.MaxSessions = c.Server.MaxSessions
	s.ShutdownTimeout = duration(c.Server.ShutdownTimeout, s.ShutdownTimeout)
	s.CleanupInterval = duration(c.Server.CleanupInterval, s.CleanupInterval)
	s.MetricsNamespace = c.Server.MetricsNamespace
	s.Deployment = c.SessionDeployment()
	s.WebSocket = push.WebSocketConfig{
		WriteTimeout:   duration(c.WebSocket.WriteTimeout, s.WebSocket.WriteTimeout),
		ReadTimeout:    duration(c.WebSocket.ReadTimeout, s.WebSocket.ReadTimeout),
		PingInterval:   duration(c.WebSocket.PingInterval, s.WebSocket.PingInterval),
		MaxMessageSize: c.WebSocket.MaxMessageSize,
	}
	return s
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

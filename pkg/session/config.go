package session

import (
	"fmt"
	"strings"
	"time"
)

// PushMode controls whether and how server push is used.
type PushMode int

const (
	// PushModeDisabled rejects push connections.
	PushModeDisabled PushMode = iota
	// PushModeManual pushes only when application code calls Push.
	PushModeManual
	// PushModeAutomatic pushes dirty UIs whenever the session is unlocked.
	PushModeAutomatic
)

// String returns the configuration name of the mode.
func (m PushMode) String() string {
	switch m {
	case PushModeDisabled:
		return "disabled"
	case PushModeManual:
		return "manual"
	case PushModeAutomatic:
		return "automatic"
	default:
		return fmt.Sprintf("PushMode(%d)", int(m))
	}
}

// ParsePushMode parses a mode name as used in configuration files.
func ParsePushMode(s string) (PushMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled":
		return PushModeDisabled, nil
	case "manual":
		return PushModeManual, nil
	case "automatic":
		return PushModeAutomatic, nil
	}
	return PushModeDisabled, fmt.Errorf("session: unknown push mode %q", s)
}

// SystemMessages are the texts of the critical notifications sent to the
// client.
type SystemMessages struct {
	SessionExpiredCaption             string
	SessionExpiredMessage             string
	SessionExpiredURL                 string
	SessionExpiredNotificationEnabled bool

	InternalErrorCaption             string
	InternalErrorMessage             string
	InternalErrorURL                 string
	InternalErrorNotificationEnabled bool
}

// DefaultSystemMessages returns the stock notification texts.
func DefaultSystemMessages() SystemMessages {
	return SystemMessages{
		SessionExpiredCaption:             "Session Expired",
		SessionExpiredMessage:             "Take note of any unsaved data, and <u>click here</u> or press ESC key to continue.",
		SessionExpiredNotificationEnabled: true,
		InternalErrorCaption:              "Internal error",
		InternalErrorMessage:              "Please notify the administrator.<br>Take note of any unsaved data, and <u>click here</u> or press ESC to continue.",
		InternalErrorNotificationEnabled:  true,
	}
}

// DeploymentConfig holds the deployment knobs read by the communication
// layer. It is read-only once a session has been created with it.
type DeploymentConfig struct {
	// ProductionMode disables debug-only response fields such as timings.
	ProductionMode bool

	// SyncIDCheckEnabled makes responses carry the tracker sync id. When
	// disabled the sync id is written as -1.
	SyncIDCheckEnabled bool

	// XSRFProtectionEnabled requires every UIDL request to carry the
	// session CSRF token.
	XSRFProtectionEnabled bool

	// PushMode controls server push.
	PushMode PushMode

	// LongPollingSuspendTimeout bounds how long a long-polling request is
	// held open. Zero or negative suspends until the resource is resumed.
	LongPollingSuspendTimeout time.Duration

	// SessionTimeout is the idle time after which a session expires.
	SessionTimeout time.Duration

	// HeartbeatInterval is the client heartbeat period.
	HeartbeatInterval time.Duration

	// Version is the server widgetset version compared against v-wsver.
	Version string

	// Messages are the critical notification texts.
	Messages SystemMessages
}

// DefaultDeploymentConfig returns a DeploymentConfig with sensible defaults.
func DefaultDeploymentConfig() *DeploymentConfig {
	return &DeploymentConfig{
		ProductionMode:            false,
		SyncIDCheckEnabled:        true,
		XSRFProtectionEnabled:     true,
		PushMode:                  PushModeDisabled,
		LongPollingSuspendTimeout: -1,
		SessionTimeout:            30 * time.Minute,
		HeartbeatInterval:         5 * time.Minute,
		Version:                   "1.0.0",
		Messages:                  DefaultSystemMessages(),
	}
}

// Clone returns a copy of the DeploymentConfig.
func (c *DeploymentConfig) Clone() *DeploymentConfig {
	if c == nil {
		return DefaultDeploymentConfig()
	}
	clone := *c
	return &clone
}

// WithPushMode sets the push mode and returns the config for chaining.
func (c *DeploymentConfig) WithPushMode(mode PushMode) *DeploymentConfig {
	c.PushMode = mode
	return c
}

// WithXSRFProtection toggles CSRF token checking and returns the config for
// chaining.
func (c *DeploymentConfig) WithXSRFProtection(enabled bool) *DeploymentConfig {
	c.XSRFProtectionEnabled = enabled
	return c
}

// WithSyncIDCheck toggles sync id checking and returns the config for
// chaining.
func (c *DeploymentConfig) WithSyncIDCheck(enabled bool) *DeploymentConfig {
	c.SyncIDCheckEnabled = enabled
	return c
}

// SessionTimeoutSeconds returns the idle timeout in whole seconds, the unit
// the client uses for its redirect timer.
func (c *DeploymentConfig) SessionTimeoutSeconds() int {
	return int(c.SessionTimeout / time.Second)
}

// Warnings returns human readable warnings about insecure settings.
func (c *DeploymentConfig) Warnings() []string {
	var out []string
	if !c.XSRFProtectionEnabled {
		out = append(out, "XSRF protection is disabled; UIDL requests are not checked for a CSRF token")
	}
	if !c.ProductionMode {
		out = append(out, "production mode is disabled; responses include debug timings")
	}
	return out
}

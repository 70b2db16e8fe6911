package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/uidl/internal/errors"
	"github.com/vango-dev/uidl/pkg/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var ue *errors.UIDLError
	if !stderrors.As(err, &ue) {
		t.Fatalf("error %v is not a UIDLError", err)
	}
	return ue.Code
}

func TestNew_Defaults(t *testing.T) {
	c := New()

	if c.Server.Address != DefaultAddress {
		t.Errorf("Address = %q, want %q", c.Server.Address, DefaultAddress)
	}
	if c.Deployment.PushMode != "disabled" {
		t.Errorf("PushMode = %q, want disabled", c.Deployment.PushMode)
	}
	if c.WebSocket.ReadTimeout != "1m0s" {
		t.Errorf("ReadTimeout = %q, want 1m0s", c.WebSocket.ReadTimeout)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `{
		"server": {"address": ":9090", "maxSessions": 10, "shutdownTimeout": "5s"},
		"deployment": {
			"productionMode": true,
			"syncIdCheck": false,
			"pushMode": "automatic",
			"longPollingSuspendTimeout": "20s",
			"sessionTimeout": "10m"
		},
		"websocket": {"pingInterval": "15s"}
	}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Path() != filepath.Join(dir, ConfigFileName) {
		t.Errorf("Path() = %q", c.Path())
	}

	d := c.SessionDeployment()
	want := session.DefaultDeploymentConfig()
	want.ProductionMode = true
	want.SyncIDCheckEnabled = false
	want.PushMode = session.PushModeAutomatic
	want.LongPollingSuspendTimeout = 20 * time.Second
	want.SessionTimeout = 10 * time.Minute
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("SessionDeployment() mismatch (-want +got):\n%s", diff)
	}

	s := c.ServerConfig()
	if s.Address != ":9090" || s.MaxSessions != 10 || s.ShutdownTimeout != 5*time.Second {
		t.Errorf("ServerConfig() = %+v", s)
	}
	if s.WebSocket.PingInterval != 15*time.Second || s.WebSocket.ReadTimeout != time.Minute {
		t.Errorf("WebSocket = %+v", s.WebSocket)
	}
	if s.Deployment.PushMode != session.PushModeAutomatic {
		t.Errorf("Deployment.PushMode = %v", s.Deployment.PushMode)
	}
}

func TestLoad_Messages(t *testing.T) {
	dir := writeConfig(t, `{
		"messages": {
			"sessionExpiredCaption": "Gone",
			"sessionExpiredNotification": true,
			"internalErrorUrl": "/oops"
		}
	}`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := session.SystemMessages{
		SessionExpiredCaption:             "Gone",
		SessionExpiredNotificationEnabled: true,
		InternalErrorURL:                  "/oops",
	}
	if diff := cmp.Diff(want, c.SessionDeployment().Messages); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"invalid json", `{"server": `, "U051"},
		{"negative sessions", `{"server": {"maxSessions": -1}}`, "U052"},
		{"bad push mode", `{"deployment": {"pushMode": "sometimes"}}`, "U052"},
		{"bad duration", `{"deployment": {"sessionTimeout": "forever"}}`, "U052"},
		{"bad websocket duration", `{"websocket": {"readTimeout": "1x"}}`, "U052"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if got := errorCode(t, err); got != tt.code {
				t.Errorf("code = %s, want %s", got, tt.code)
			}
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("Exists() = true for empty dir")
	}
	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load() error = nil")
	}
	if got := errorCode(t, err); got != "U050" {
		t.Errorf("code = %s, want U050", got)
	}
}

func TestExists(t *testing.T) {
	if !Exists(writeConfig(t, `{}`)) {
		t.Error("Exists() = false")
	}
}

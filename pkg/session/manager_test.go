package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	m := NewManager(nil, testLogger())
	defer m.Shutdown()

	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
	if m.Config() == nil {
		t.Error("Config() should default")
	}
}

func TestManager_CreateGetClose(t *testing.T) {
	var closed []string
	m := NewManager(nil, testLogger(), WithOnSessionClose(func(s *Session) {
		closed = append(closed, s.ID())
	}))
	defer m.Shutdown()

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v; want created session", got, err)
	}

	m.Close(s.ID())
	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Get() after Close error = %v, want ErrSessionExpired", err)
	}
	if len(closed) != 1 || closed[0] != s.ID() {
		t.Errorf("close callback got %v", closed)
	}
	if !s.IsClosed() {
		t.Error("session should be closed")
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(nil, testLogger())
	defer m.Shutdown()

	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Get(unknown) error = %v, want ErrSessionExpired", err)
	}
}

func TestManager_GetExpired(t *testing.T) {
	cfg := DefaultDeploymentConfig()
	cfg.SessionTimeout = time.Millisecond
	m := NewManager(cfg, testLogger())
	defer m.Shutdown()

	s, _ := m.Create()
	time.Sleep(5 * time.Millisecond)

	if _, err := m.Get(s.ID()); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Get(expired) error = %v, want ErrSessionExpired", err)
	}
	if m.Count() != 0 {
		t.Errorf("expired session should be removed, Count() = %d", m.Count())
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m := NewManager(nil, testLogger(), WithMaxSessions(1))
	defer m.Shutdown()

	if _, err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(); !errors.Is(err, ErrMaxSessionsReached) {
		t.Errorf("Create() over limit error = %v, want ErrMaxSessionsReached", err)
	}
}

func TestManager_CleanupLoop(t *testing.T) {
	cfg := DefaultDeploymentConfig()
	cfg.SessionTimeout = time.Millisecond
	m := NewManager(cfg, testLogger(), WithCleanupInterval(5*time.Millisecond))
	defer m.Shutdown()

	m.Create()
	m.Create()

	deadline := time.Now().Add(time.Second)
	for m.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after cleanup, want 0", m.Count())
	}
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(nil, testLogger())
	defer m.Shutdown()

	a, _ := m.Create()
	m.Create()
	m.Close(a.ID())

	stats := m.Stats()
	if stats.Active != 1 {
		t.Errorf("Active = %d, want 1", stats.Active)
	}
	if stats.TotalCreated != 2 {
		t.Errorf("TotalCreated = %d, want 2", stats.TotalCreated)
	}
	if stats.TotalClosed != 1 {
		t.Errorf("TotalClosed = %d, want 1", stats.TotalClosed)
	}
	if stats.Peak != 2 {
		t.Errorf("Peak = %d, want 2", stats.Peak)
	}
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager(nil, testLogger())
	a, _ := m.Create()
	b, _ := m.Create()

	if err := m.ShutdownWithContext(context.Background()); err != nil {
		t.Fatalf("ShutdownWithContext() error: %v", err)
	}
	if !a.IsClosed() || !b.IsClosed() {
		t.Error("all sessions should be closed")
	}
	if _, err := m.Create(); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Create() after shutdown error = %v, want ErrManagerClosed", err)
	}
	if err := m.ShutdownWithContext(context.Background()); err != nil {
		t.Errorf("second shutdown error = %v", err)
	}
}

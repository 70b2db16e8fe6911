package server

import "errors"

// Sentinel errors for server setup.
var (
	// ErrNoUIFactory is returned by New without a UI factory.
	ErrNoUIFactory = errors.New("server: no ui factory")

	// ErrAlreadyRunning is returned by a second Run.
	ErrAlreadyRunning = errors.New("server: already running")
)

// Package session provides sessions, UIs and the deployment configuration
// consumed by the UIDL communication layer.
//
// A Session is the unit of mutual exclusion. Every handler that touches a
// UI acquires the session lock with Lock and releases it with Unlock in a
// deferred call. Unlock also runs tasks queued through Access and, in
// automatic push mode, pushes UIs that became dirty.
//
// A UI owns a connector.Tracker, the id of the last processed client
// message, the client type cache that decides whether the next response is
// a resynchronization, and optionally a PushConnection.
//
// The Manager keeps the live sessions, expires idle ones and reports
// ErrSessionExpired for ids it does not know.
package session

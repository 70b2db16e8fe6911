// Package errors provides the structured error taxonomy shared by the UIDL
// request pipeline and the push dispatcher.
//
// # Error Categories
//
// Every registered error belongs to one category:
//   - protocol: client/server message id desync (absorbed by a resync)
//   - security: invalid CSRF token or push id
//   - malformed: payloads that cannot be parsed
//   - connector: failures raised by application connector code
//   - transport: push channel failures and races
//   - session: expired sessions, unknown UIs
//   - config: configuration loading and validation
//
// The push dispatcher inspects [CategoryOf] to decide whether a failure ends
// in a refresh-and-disconnect or in an internal-error notification routed
// to the session error handler.
//
// # Usage
//
//	err := errors.New("U010").Wrap(jsonErr)
//	if errors.Recoverable(err) {
//	    // send the client a refresh notification
//	}
package errors

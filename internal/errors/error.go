package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies a failure so callers can choose between recovery and
// escalation.
type Category string

const (
	// CategoryProtocol covers client/server message id desync.
	CategoryProtocol Category = "protocol"
	// CategorySecurity covers a bad CSRF token or push id.
	CategorySecurity Category = "security"
	// CategoryMalformed covers payloads that cannot be parsed.
	CategoryMalformed Category = "malformed"
	// CategoryConnector covers failures raised by connector or RPC code.
	CategoryConnector Category = "connector"
	// CategoryTransport covers push channel and resource races.
	CategoryTransport Category = "transport"
	// CategorySession covers expired sessions and missing UIs.
	CategorySession Category = "session"
	// CategoryConfig covers configuration loading and validation.
	CategoryConfig Category = "config"
	// CategoryRuntime is everything else.
	CategoryRuntime Category = "runtime"
)

// UIDLError is a structured error carrying a registered code and category.
type UIDLError struct {
	// Code is a unique error identifier (e.g., "U001").
	Code string

	// Category is the failure class.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *UIDLError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *UIDLError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target carries the same code.
func (e *UIDLError) Is(target error) bool {
	t, ok := target.(*UIDLError)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *UIDLError) WithSuggestion(s string) *UIDLError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *UIDLError) WithDetail(d string) *UIDLError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *UIDLError) Wrap(err error) *UIDLError {
	e.Wrapped = err
	return e
}

// New creates a UIDLError from a registered error code.
func New(code string) *UIDLError {
	template, ok := registry[code]
	if !ok {
		return &UIDLError{
			Code:     code,
			Category: CategoryRuntime,
			Message:  "Unknown error",
		}
	}
	return &UIDLError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new UIDLError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *UIDLError {
	return &UIDLError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a UIDLError.
func FromError(err error, code string) *UIDLError {
	if err == nil {
		return nil
	}
	var ue *UIDLError
	if stderrors.As(err, &ue) && ue.Code == code {
		return ue
	}
	return New(code).Wrap(err)
}

// CategoryOf returns the category of the outermost UIDLError in err's chain.
// Errors that carry no category report CategoryRuntime.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ue *UIDLError
	if stderrors.As(err, &ue) && ue.Category != "" {
		return ue.Category
	}
	return CategoryRuntime
}

// Recoverable reports whether err is a condition the client recovers from by
// reloading: bad security key, bad push id or unparsable payload.
func Recoverable(err error) bool {
	switch CategoryOf(err) {
	case CategorySecurity, CategoryMalformed:
		return true
	}
	return false
}

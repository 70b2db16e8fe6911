package uidl

import (
	"encoding/json"
	"strings"

	"github.com/vango-dev/uidl/pkg/session"
)

// Guard is the anti-hijacking prefix of every UIDL payload.
const Guard = "for(;;);"

// Wrap frames a response object as sent on the wire: for(;;);[{...}].
func Wrap(payload []byte) string {
	var b strings.Builder
	b.Grow(len(Guard) + len(payload) + 2)
	b.WriteString(Guard)
	b.WriteByte('[')
	b.Write(payload)
	b.WriteByte(']')
	return b.String()
}

// Unwrap strips the guard and the surrounding array brackets.
func Unwrap(message string) (string, bool) {
	if !strings.HasPrefix(message, Guard+"[") || !strings.HasSuffix(message, "]") {
		return "", false
	}
	return message[len(Guard)+1 : len(message)-1], true
}

// Notification is a critical message the client shows before reloading or
// redirecting. Empty fields are sent as null; a notification with every
// field empty makes the client reload silently.
type Notification struct {
	Caption string
	Message string
	Details string
	URL     string
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// JSON returns the notification as a complete wire message.
func (n Notification) JSON() string {
	var appError object
	appError.set("caption", nullable(n.Caption))
	appError.set("url", nullable(n.URL))
	appError.set("message", nullable(n.Message))
	appError.set("details", nullable(n.Details))

	var meta object
	meta.set("appError", appError)

	var root object
	root.set("changes", object{})
	root.set("resources", object{})
	root.set("locales", object{})
	root.set("meta", meta)
	root.set("syncId", -1)

	// object only holds strings, nil and nested objects.
	payload, _ := json.Marshal(root)
	return Wrap(payload)
}

// CriticalNotification builds a critical notification message.
func CriticalNotification(caption, message, details, url string) string {
	return Notification{Caption: caption, Message: message, Details: details, URL: url}.JSON()
}

// RefreshNotification tells the client to reload without showing anything.
func RefreshNotification() string {
	return Notification{}.JSON()
}

// SessionExpiredNotification tells the client its session is gone. With
// the notification disabled the client redirects without a message.
func SessionExpiredNotification(m session.SystemMessages) string {
	if !m.SessionExpiredNotificationEnabled {
		return Notification{URL: m.SessionExpiredURL}.JSON()
	}
	return Notification{
		Caption: m.SessionExpiredCaption,
		Message: m.SessionExpiredMessage,
		URL:     m.SessionExpiredURL,
	}.JSON()
}

// UINotFoundNotification is sent when a request names a UI that does not
// exist. It reuses the session expired texts.
func UINotFoundNotification(m session.SystemMessages) string {
	return SessionExpiredNotification(m)
}

// InternalErrorNotification reports an unexpected server failure.
func InternalErrorNotification(m session.SystemMessages, details string) string {
	if !m.InternalErrorNotificationEnabled {
		return Notification{URL: m.InternalErrorURL}.JSON()
	}
	return Notification{
		Caption: m.InternalErrorCaption,
		Message: m.InternalErrorMessage,
		Details: details,
		URL:     m.InternalErrorURL,
	}.JSON()
}

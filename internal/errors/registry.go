package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Security (U001-U009)
	// ============================================

	"U001": {
		Category: CategorySecurity,
		Message:  "Invalid security key",
		Detail:   "The csrfToken in the request does not match the token stored in the session.",
	},
	"U002": {
		Category: CategorySecurity,
		Message:  "Invalid push id",
		Detail:   "The v-pushId parameter does not match the push id stored in the session.",
	},

	// ============================================
	// Malformed payloads (U010-U019)
	// ============================================

	"U010": {
		Category: CategoryMalformed,
		Message:  "Malformed UIDL request",
		Detail:   "The request body could not be parsed as a UIDL JSON object.",
	},
	"U011": {
		Category: CategoryMalformed,
		Message:  "Malformed RPC invocation",
		Detail:   "An rpc entry must be [connectorId, interface, method, [params...]].",
	},
	"U012": {
		Category: CategoryMalformed,
		Message:  "Malformed UIDL value",
		Detail:   "A legacy variable value must be a [typeTag, value] pair.",
	},
	"U013": {
		Category: CategoryMalformed,
		Message:  "Malformed push fragment",
		Detail:   "A fragmented push message must start with <length>|.",
	},

	// ============================================
	// Connector failures (U020-U029)
	// ============================================

	"U020": {
		Category: CategoryConnector,
		Message:  "Connector state serialization failed",
	},
	"U021": {
		Category: CategoryConnector,
		Message:  "RPC invocation failed",
	},
	"U022": {
		Category: CategoryConnector,
		Message:  "Connector does not accept variable changes",
		Detail:   "A legacy variable change was sent to a connector that is not a variable owner.",
	},
	"U023": {
		Category: CategoryConnector,
		Message:  "Connector paint failed",
	},

	// ============================================
	// Transport (U030-U039)
	// ============================================

	"U030": {
		Category: CategoryTransport,
		Message:  "Push send failed",
	},
	"U031": {
		Category: CategoryTransport,
		Message:  "Push is not enabled for this UI",
	},

	// ============================================
	// Session (U040-U049)
	// ============================================

	"U040": {
		Category: CategorySession,
		Message:  "Session expired",
	},
	"U041": {
		Category: CategorySession,
		Message:  "UI not found",
	},

	// ============================================
	// Config (U050-U059)
	// ============================================

	"U050": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},
	"U051": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
	},
	"U052": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

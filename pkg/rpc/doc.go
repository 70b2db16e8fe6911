// Package rpc decodes client-to-server messages and applies them to a UI.
//
// A message is a JSON object:
//
//	{"csrfToken": "...", "v-sid": 3, "v-cid": 4, "v-resync": false,
//	 "v-wsver": "1.0.0", "rpc": [[connectorId, interface, method, [params]]]}
//
// Entries of the rpc array become either a MethodCall, dispatched through
// the connector's RPCManager for the interface, or a LegacyChange, handed
// to a VariableOwner. Legacy changes use the interface and method "v" and
// carry a variable name and a tagged value (see DecodeValue). Consecutive
// legacy changes for one connector are merged into one call.
//
// The Handler checks the CSRF token, then the client message id: a message
// whose id is not the next expected one is not applied and the UI is
// scheduled for full resynchronization.
package rpc

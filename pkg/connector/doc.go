// Package connector defines the server-side connector model and the
// Tracker that records, per UI, which connectors must be sent to the client.
//
// # Connectors
//
// A Connector is identified by a stable string id shared with the client.
// Optional behavior is discovered through small interfaces:
//
//   - StateEncoder: shared state, diffed against what the client has
//   - BeforeResponder: hook invoked right before serialization
//   - Painter: legacy UIDL paint output
//   - RPCTarget / ClientRPCSource: server and client RPC
//   - VariableOwner: legacy variable changes
//
// Base implements the common ones and is meant to be embedded.
//
// # Tracker
//
// The Tracker is an arena of connector records keyed by id. Parent and child
// links are ids, not pointers. The dirty set keeps insertion order. While a
// response is being written the tracker refuses to mark connectors dirty so
// that a serialized response always reflects a closed set of changes.
package connector

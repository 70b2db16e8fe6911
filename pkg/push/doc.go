// Package push implements server push for UIDL: the per-UI Connection
// state machine, the WebSocket and HTTP (long-polling, streaming)
// resources, client message reassembly, and the Handler dispatching
// connect, message and disconnect events.
//
// # States
//
//	Disconnected --push(async)--> PushPending
//	Disconnected --push(sync)---> ResponsePending
//	PushPending --push(sync)----> ResponsePending
//	any --connect--> Connected (flushing a latched push)
//	Connected --disconnect / connection lost--> Disconnected
//
// Transition is the pure transition function; Connection performs the
// side effects it returns. A Connection is Connected exactly when it holds
// a resource.
//
// # Messages
//
// Server messages are complete wire messages, for(;;);[{...}]. Clients
// send WebSocket messages as <len>|payload split into frames of at most
// FragmentSize UTF-16 code units; FragmentBuffer reassembles them.
// Streaming responses frame every server message the same way.
package push

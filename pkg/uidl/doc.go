// Package uidl assembles the JSON responses sent to the client and the
// critical notifications sent in place of a response.
//
// A response is one JSON object. Its fields are written in a fixed order
// because the client processes them in that order:
//
//	syncId, resynchronize, clientId, changes, state, types, hierarchy,
//	rpc, meta, resources, typeMappings, typeInheritanceMap,
//	dependencies, timings
//
// Before anything is written the Writer runs the before-response hooks of
// every dirty connector, repeating until the dirty set stops growing, and
// then sets the tracker's writing flag so nothing can be dirtied while the
// response is serialized. Changes to the UI (diff states, client type
// cache, announced timeout) are committed only after the whole object
// has been written.
//
// Over plain HTTP the object is wrapped as for(;;);[{...}] by the caller.
// Push messages use the same framing.
package uidl

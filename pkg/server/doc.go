// Package server exposes the UIDL protocol over HTTP.
//
// Routes:
//
//	POST /init       create a UI (and a session) and return its first response
//	POST /UIDL/      apply a client message and return the changes
//	GET  /PUSH       open a push channel (websocket, long-polling, streaming)
//	POST /PUSH       send a client message beside an HTTP push channel
//	GET  /metrics    Prometheus metrics
//	GET  /healthz    liveness
//
// Requests name their UI with the v-uiId query parameter and their session
// with the UIDLSESSIONID cookie.
//
// Example:
//
//	srv, err := server.New(nil, func(ui *session.UI) error {
//	    return ui.Tracker().Register(connector.NewBase("0", rootType), "")
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Run(ctx))
package server

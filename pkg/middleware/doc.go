// Package middleware provides HTTP middleware for UIDL servers.
//
// This package includes:
//   - OpenTelemetry tracing of every request
//   - Prometheus request counters and latency histograms
//
// Both wrap the response writer with chi's WrapResponseWriter, which keeps
// http.Flusher and http.Hijacker available to streaming push and WebSocket
// upgrades.
//
// # OpenTelemetry Middleware
//
//	r := chi.NewRouter()
//	r.Use(middleware.Tracing(middleware.WithTracer(tracer)))
//
// Spans are named after the chi route pattern, e.g. "POST /UIDL", and carry
// the HTTP method, route, UI id and response status.
//
// # Prometheus Metrics
//
//	r.Use(middleware.Metrics(
//	    middleware.WithRegistry(registry),
//	    middleware.WithNamespace("uidl"),
//	))
//
// Available metrics:
//   - uidl_http_requests_total{route,status}
//   - uidl_http_request_duration_seconds{route}
//   - uidl_http_requests_in_flight
package middleware

package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/uidl/pkg/session"
)

const defaultTracerName = "uidl"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// Tracer starts the request spans. Defaults to the global provider's
	// tracer named "uidl".
	Tracer trace.Tracer

	// Filter reports whether a request is traced. Nil traces everything.
	Filter func(r *http.Request) bool
}

// TracingOption configures the tracing middleware.
type TracingOption func(*TracingConfig)

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) TracingOption {
	return func(c *TracingConfig) {
		if t != nil {
			c.Tracer = t
		}
	}
}

// WithFilter sets the request filter.
func WithFilter(filter func(r *http.Request) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// Tracing creates middleware that wraps every request in a server span.
// The span is stored in the request context so handlers can start child
// spans from r.Context().
func Tracing(opts ...TracingOption) func(http.Handler) http.Handler {
	config := TracingConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(defaultTracerName)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Filter != nil && !config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			}
			if ui := r.URL.Query().Get(session.UIIDParameter); ui != "" {
				attrs = append(attrs, attribute.String("ui.id", ui))
			}

			ctx, span := config.Tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if route := routePattern(r); route != "" {
				span.SetName(r.Method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			status := statusOf(ww)
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, strconv.Itoa(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// routePattern returns the chi route that matched r, or "" outside a chi
// router.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// statusOf returns the written status. Handlers that never write and
// hijacked connections report 200.
func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
)

const (
	// TenantIDHeader selects the tenant an analysis belongs to.
	TenantIDHeader = "X-Tenant-ID"

	// TraceIDHeader carries the trace ID in and out of the API.
	TraceIDHeader = "X-Trace-ID"
)

var tracer = otel.Tracer("truthlens-api")

// scope is the per-request identity shared by the middleware and handlers.
type scope struct {
	tenantID string
	traceID  string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *scope {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s
	}
	return &scope{}
}

// withScope installs an empty scope so later middleware can fill it in
// without re-wrapping the request.
func withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), scopeKey{}, &scope{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withTenant reads the tenant from X-Tenant-ID. Requests without the header
// belong to domain.PublicTenantID.
func withTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
		if tenantID == "" {
			tenantID = domain.PublicTenantID
		}
		scopeFrom(r.Context()).tenantID = tenantID
		next.ServeHTTP(w, r)
	})
}

// withTrace opens a server span per request. The trace ID comes from the
// span when a provider is installed, otherwise from X-Trace-ID or the chi
// request ID.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		traceID := r.Header.Get(TraceIDHeader)
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = requestID
		}
		scopeFrom(ctx).traceID = traceID
		w.Header().Set(TraceIDHeader, traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := statusOf(ww)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// logRequests writes one log line per request and records it in the HTTP
// metrics under its chi route pattern.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := statusOf(ww)
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ObserveHTTP(route, r.Method, status, elapsed)

		s := scopeFrom(r.Context())
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"tenant_id", s.tenantID,
			"trace_id", s.traceID,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// statusOf treats a handler that never wrote a header as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers":     "Content-Type, Authorization, X-Tenant-ID, X-Trace-ID, X-Request-Id",
	"Access-Control-Expose-Headers":    "X-Trace-ID, X-Request-Id",
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Max-Age":           "86400",
}

// allowCORS lets the browser extension call the API from any product page.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		for k, v := range corsHeaders {
			h.Set(k, v)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverJSON turns a handler panic into a JSON 500.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("handler panic",
					"panic", rec,
					"route", r.URL.Path,
					"trace_id", scopeFrom(r.Context()).traceID,
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"detail": "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// GetTenantID returns the request tenant, or domain.PublicTenantID outside a
// tenant-scoped route.
func GetTenantID(ctx context.Context) string {
	if id := scopeFrom(ctx).tenantID; id != "" {
		return id
	}
	return domain.PublicTenantID
}

// GetTraceID returns the request trace ID, if any.
func GetTraceID(ctx context.Context) string {
	return scopeFrom(ctx).traceID
}

package observability

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hanko-field/returns/internal/platform/httpx"
	"github.com/hanko-field/returns/internal/platform/requestctx"
)

const maxActorLen = 64

// InjectLoggerMiddleware makes logger the request logger.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// ActorMiddleware records the X-Actor-ID header supplied by the admin gateway. It is an audit
// label, not authentication.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := cleanActor(r.Header.Get(requestctx.ActorHeader)); actor != "" {
			r = r.WithContext(requestctx.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware turns a panic into a 500 JSON error and logs the stack.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := requestctx.Logger(r.Context())
				if logger == requestctx.NoopLogger() && fallback != nil {
					logger = fallback
				}
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLoggerMiddleware logs one line per request once the handler returns and records the
// response status on the active span.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info, _ := requestctx.Trace(ctx)
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", r.Method),
				zap.String("trace_id", info.TraceID),
			}
			if actor := requestctx.Actor(ctx); actor != "" {
				fields = append(fields, zap.String("actor_id", actor))
			}
			if projectID != "" && info.TraceID != "" {
				fields = append(fields, zap.String("logging.googleapis.com/trace", "projects/"+projectID+"/traces/"+info.TraceID))
			}
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				fields = append(fields, zap.String("remote_ip", host))
			}
			logger := requestctx.Logger(ctx).With(fields...)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(requestctx.WithLogger(ctx, logger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			done := []zap.Field{
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
			}
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("request completed", done...)
			case status >= http.StatusBadRequest:
				logger.Warn("request completed", done...)
			default:
				logger.Info("request completed", done...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// cleanActor drops control characters and bounds the header value so it is safe to log.
func cleanActor(raw string) string {
	actor := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if runes := []rune(actor); len(runes) > maxActorLen {
		actor = string(runes[:maxActorLen])
	}
	return actor
}

package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hanko-field/returns/internal/platform/httpx"
	"github.com/hanko-field/returns/internal/platform/requestctx"
)

const (
	// DefaultHeader carries the client supplied key.
	DefaultHeader = "Idempotency-Key"
	// ReplayHeader is set on responses served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 255
	anonymous    = "anonymous"
)

// Logger receives store failures that cannot be surfaced to the client.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option customises the middleware.
type Option func(*guard)

// WithHeader overrides the header holding the key.
func WithHeader(name string) Option {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) Option {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger Logger) Option {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

type guard struct {
	store  Store
	next   http.Handler
	header string
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// Middleware guards POST, PUT, PATCH, and DELETE requests that carry an idempotency key. Keys are
// scoped to the calling actor. Requests without a key pass through. 5xx responses release the key
// so the client can retry.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		g := &guard{
			store:  store,
			next:   next,
			header: DefaultHeader,
			ttl:    DefaultTTL,
			clock:  time.Now,
			logger: nopLogger{},
		}
		for _, opt := range opts {
			if opt != nil {
				opt(g)
			}
		}
		return g
	}
}

func guarded(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(g.header))
	if key == "" || !guarded(r.Method) {
		g.next.ServeHTTP(w, r)
		return
	}
	ctx := r.Context()
	if len(key) > maxKeyLength {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", "idempotency key is too long", http.StatusBadRequest))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	actor := strings.TrimSpace(requestctx.Actor(ctx))
	if actor == "" {
		actor = anonymous
	}
	scoped := actor + ":" + key
	fingerprint := requestFingerprint(r, actor, body)

	outcome, stored, err := g.store.Claim(ctx, scoped, fingerprint, g.clock().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrKeyReused):
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	case err != nil:
		g.logger.Error("idempotency claim failed", "key", key, "actor", actor, "error", err)
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
		return
	}
	switch outcome {
	case InFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
		return
	case Replayable:
		w.Header().Set(ReplayHeader, "true")
		writeResponse(w, *stored)
		return
	}

	rec := &recorder{header: make(http.Header)}
	g.next.ServeHTTP(rec, r)
	resp := rec.response()

	if resp.Status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, scoped); err != nil {
			g.logger.Warn("idempotency release failed", "key", key, "actor", actor, "error", err)
		}
		writeResponse(w, resp)
		return
	}
	if err := g.store.Complete(ctx, scoped, fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
		g.logger.Error("idempotency complete failed", "key", key, "actor", actor, "error", err)
		if err := g.store.Release(ctx, scoped); err != nil {
			g.logger.Warn("idempotency release failed", "key", key, "actor", actor, "error", err)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError))
		return
	}
	writeResponse(w, resp)
}

func requestFingerprint(r *http.Request, actor string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, actor} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeResponse(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// recorder buffers the handler's response until the outcome is stored.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) response() Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return Response{Status: status, Header: r.header, Body: r.body.Bytes()}
}

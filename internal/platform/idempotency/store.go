// Package idempotency replays the first outcome of a mutating request when the client retries it
// with the same Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Outcome is the result of claiming a key.
type Outcome int

const (
	// Claimed means the caller now owns the key and must Complete or Release it.
	Claimed Outcome = iota
	// InFlight means another request owns the key and has not finished.
	InFlight
	// Replayable means a completed response is stored for the key.
	Replayable
)

// ErrKeyReused is returned when a key is presented with a different request than the one that
// claimed it.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Response is the stored outcome of a completed request.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Entry is the persisted state of one key. Response is nil while the key is in flight.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Response    *Response `json:"response,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func (e Entry) outcome() Outcome {
	if e.Response != nil {
		return Replayable
	}
	return InFlight
}

// Store persists key claims and completed responses.
type Store interface {
	// Claim takes ownership of key or reports what is already stored for it. The stored response
	// is returned only for Replayable.
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, *Response, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	// Sweep deletes up to limit expired entries and reports how many were removed.
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// hop-by-hop and framing headers are recomputed on replay
var unstoredHeaders = map[string]bool{
	"Connection":          true,
	"Content-Length":      true,
	"Date":                true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func storableHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		name = http.CanonicalHeaderKey(name)
		if unstoredHeaders[name] {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

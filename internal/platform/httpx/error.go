// Package httpx writes the JSON error body shared by every returns endpoint.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/returns/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
)

// Error is an API failure. The body always carries error, message, and status; request_id and
// trace_id are added when known, and Details are merged in at the top level.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, maxCodeLen),
		Message: singleLine(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails returns a copy of e with details added. Later keys win.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError renders e as the response.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	body := make(map[string]any, len(e.Details)+5)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if id := singleLine(middleware.GetReqID(ctx), maxCodeLen); id != "" {
		body["request_id"] = id
	}
	if id := requestctx.TraceID(ctx); id != "" {
		body["trace_id"] = singleLine(id, 64)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(body)
}

func singleLine(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}

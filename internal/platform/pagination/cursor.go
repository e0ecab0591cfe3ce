// Package pagination encodes keyset page tokens for listings ordered newest first, with the
// document ID breaking ties between equal creation times.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidToken reports a page token that was not produced by Encode.
var ErrInvalidToken = errors.New("pagination: invalid page token")

// Cursor identifies the last item of a page.
type Cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// IsZero reports whether the cursor points at the start of the listing.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// Follows reports whether an item with the given creation time and ID sorts after the cursor.
func (c Cursor) Follows(createdAt time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// Encode renders the cursor as an opaque URL-safe token. The zero cursor encodes to "".
func Encode(c Cursor) string {
	if c.IsZero() {
		return ""
	}
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode. An empty token yields the zero cursor.
func Decode(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// bodyLimit bounds every JSON request body the returns API accepts.
const bodyLimit = 64 << 10

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
	errMalformed    = errors.New("invalid JSON body")
)

// decodeJSONBody fills dst from the request body. Unknown fields are rejected. A blank body
// leaves dst untouched unless required is set.
func decodeJSONBody(r *http.Request, dst any, required bool) error {
	var raw []byte
	if r != nil && r.Body != nil {
		var err error
		raw, err = io.ReadAll(io.LimitReader(r.Body, bodyLimit+1))
		if err != nil {
			return err
		}
	}
	if len(raw) > bodyLimit {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if required {
			return errEmptyBody
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errMalformed
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

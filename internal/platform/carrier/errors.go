package carrier

import (
	"fmt"
	"strings"
)

// APIError reports a carrier rejection. The remark is the carrier's message, passed through verbatim.
type APIError struct {
	Action     string
	Code       string
	HTTPStatus int
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("easyparcel ")
	b.WriteString(e.Action)
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if msg := e.Remark(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Remark returns the carrier message, or a generic one when the carrier sent none.
func (e *APIError) Remark() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("carrier responded with http %d", e.HTTPStatus)
	}
	return "carrier request failed"
}

// InsufficientCredit reports whether the carrier refused payment because the account balance is too low.
func (e *APIError) InsufficientCredit() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "insufficient") && (strings.Contains(msg, "credit") || strings.Contains(msg, "balance"))
}

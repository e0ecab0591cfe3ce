package services

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/width"
)

const defaultCurrency = "MYR"

var strictTextPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and control characters from operator supplied free text while
// keeping line breaks.
func sanitizeText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	stripped := html.UnescapeString(strictTextPolicy.Sanitize(trimmed))

	normalized := strings.ReplaceAll(strings.ReplaceAll(stripped, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// normalizeCurrency returns the ISO 4217 code or defaultCurrency when the input is empty.
func normalizeCurrency(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultCurrency, true
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", false
	}
	return unit.String(), true
}

// normalizeMalaysianPhone folds full-width digits, drops punctuation and rewrites the +60/60
// country prefix to the trunk prefix. The result is 0 followed by 9 or 10 digits.
func normalizeMalaysianPhone(raw string) (string, bool) {
	folded := width.Narrow.String(strings.TrimSpace(raw))
	var digits strings.Builder
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	switch {
	case strings.HasPrefix(phone, "60"):
		phone = "0" + strings.TrimPrefix(phone, "60")
	case phone != "" && !strings.HasPrefix(phone, "0"):
		phone = "0" + phone
	}
	if len(phone) < 10 || len(phone) > 11 {
		return "", false
	}
	return phone, true
}

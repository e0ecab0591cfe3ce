package services

import "testing"

func TestNormalizeMalaysianPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"012-345 6789", "0123456789", true},
		{"+60 12-345 6789", "0123456789", true},
		{"60112345678", "0112345678", true},
		{"+6011-2345 6789", "01123456789", true},
		{"０１２３４５６７８９", "0123456789", true},
		{"123456789", "0123456789", true},
		{"03-1234 5678", "0312345678", true},
		{"12345", "", false},
		{"", "", false},
		{"0123456789012", "", false},
	}
	for _, tc := range cases {
		got, ok := normalizeMalaysianPhone(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("normalizeMalaysianPhone(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	cases := map[string]string{
		"  plain  ":                          "plain",
		"<script>alert(1)</script>broken":    "broken",
		"<b>cracked</b>   lid\r\nsecond line": "cracked lid\nsecond line",
		"fish & chips":                       "fish & chips",
	}
	for in, want := range cases {
		if got := sanitizeText(in); got != want {
			t.Errorf("sanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got, ok := normalizeCurrency(""); !ok || got != "MYR" {
		t.Fatalf("expected default MYR, got %q %v", got, ok)
	}
	if got, ok := normalizeCurrency("sgd"); !ok || got != "SGD" {
		t.Fatalf("expected SGD, got %q %v", got, ok)
	}
	if _, ok := normalizeCurrency("XYZ1"); ok {
		t.Fatalf("expected invalid currency")
	}
}

package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name          string
		origin        string
		allowed       []string
		allowNoOrigin bool
		want          bool
	}{
		{"wildcard", "https://anything.example", []string{"*"}, false, true},
		{"exact full origin", "https://app.example", []string{"https://app.example"}, false, true},
		{"scheme mismatch", "http://app.example", []string{"https://app.example"}, false, false},
		{"hostname entry", "https://app.example:8443", []string{"app.example"}, false, true},
		{"hostname no match", "https://evil.example", []string{"app.example"}, false, false},
		{"null origin literal", "null", []string{"null"}, false, true},
		{"no origin allowed", "", []string{"app.example"}, true, true},
		{"no origin rejected", "", []string{"app.example"}, false, false},
		{"empty entries skipped", "https://app.example", []string{"", "app.example"}, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://relay.local/ws/s/sender/u", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			if got := IsOriginAllowed(r, tc.allowed, tc.allowNoOrigin); got != tc.want {
				t.Fatalf("IsOriginAllowed(origin=%q, allowed=%v) = %v, want %v",
					tc.origin, tc.allowed, got, tc.want)
			}
		})
	}
}

func TestNewOriginChecker(t *testing.T) {
	check := NewOriginChecker([]string{"https://ok.example"}, false)
	r := httptest.NewRequest(http.MethodGet, "http://relay.local/", nil)
	r.Header.Set("Origin", "https://ok.example")
	if !check(r) {
		t.Fatal("expected allowed origin to pass")
	}
	r.Header.Set("Origin", "https://bad.example")
	if check(r) {
		t.Fatal("expected disallowed origin to fail")
	}
}

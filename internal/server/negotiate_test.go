package server

import "testing"

func TestNegotiate(t *testing.T) {
	offers := []string{"application/json", "text/html"}
	cases := []struct {
		accept string
		want   string
	}{
		{"", "application/json"},
		{"*/*", "application/json"},
		{"text/html", "text/html"},
		{"TEXT/HTML", "text/html"},
		{"text/*", "text/html"},
		{"text/html;q=0.5, application/json;q=0.4", "text/html"},
		{"*/*;q=0.1, application/json;q=0", "text/html"},
		{"application/json, text/*", "application/json"},
		{"image/png", ""},
		{"garbage", ""},
	}
	for _, tc := range cases {
		if got := negotiate(tc.accept, offers); got != tc.want {
			t.Errorf("negotiate(%q) = %q, want %q", tc.accept, got, tc.want)
		}
	}
	if got := negotiate("*/*", nil); got != "" {
		t.Errorf("negotiate without offers = %q", got)
	}
}

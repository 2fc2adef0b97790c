package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
)

func TestClientIPRemoteAddr(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.168.1.1:12345", "192.168.1.1"},
		{"[::1]:12345", "::1"},
		{"192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
		if got := ClientIP(r, false); got != tt.want {
			t.Errorf("ClientIP(%q, false) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestClientIPTrustProxy(t *testing.T) {
	tests := []struct {
		name string
		xff  string
		xri  string
		want string
	}{
		{"XFF single", "1.2.3.4", "", "1.2.3.4"},
		{"XFF chain takes first", "1.2.3.4, 10.0.0.1, 10.0.0.2", "", "1.2.3.4"},
		{"XFF with port", "1.2.3.4:5555", "", "1.2.3.4"},
		{"XFF ipv6", "2001:db8::1", "", "2001:db8::1"},
		{"X-Real-IP fallback", "", "5.6.7.8", "5.6.7.8"},
		{"XFF wins over X-Real-IP", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"garbage XFF falls through", "unknown", "5.6.7.8", "5.6.7.8"},
		{"garbage everywhere uses RemoteAddr", "unknown", "nope", "10.0.0.9"},
		{"no headers", "", "", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: "10.0.0.9:1234", Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, true); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPIgnoresHeadersWhenNotTrusted(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:1234", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Real-IP", "5.6.7.8")

	if got := ClientIP(r, false); got != "10.0.0.1" {
		t.Errorf("ClientIP(trustProxy=false) = %q, want 10.0.0.1", got)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteError(w, http.StatusBadGateway, "Error fetching TLE data: boom"); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(body.Error, "Error fetching TLE data") {
		t.Errorf("error = %q", body.Error)
	}
}

// Package httputil holds the request and response helpers shared by the
// HTTP-facing packages.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller's address without a port. Proxy headers are
// consulted only when trustProxy is set: the leftmost X-Forwarded-For entry
// first, then X-Real-IP. Entries that do not parse as an IP are ignored.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return stripPort(r.RemoteAddr)
}

func forwardedFor(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	return parseIP(first)
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	if host := stripPort(s); net.ParseIP(host) != nil {
		return host
	}
	return ""
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

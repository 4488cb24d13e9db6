// Package metadata resolves the client address of a request.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"credregistry/pkg/requestcontext"
)

// maxForwardedHeaderLength caps X-Forwarded-For and X-Real-IP before parsing.
const maxForwardedHeaderLength = 500

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies is a list of prefixes allowed to set forwarding headers.
	// If empty, forwarding headers are ignored.
	TrustedProxies []netip.Prefix
}

// Middleware puts the client IP in the request context.
type Middleware struct {
	trusted []netip.Prefix
}

// NewMiddleware creates a new metadata middleware. A nil config trusts no proxy.
func NewMiddleware(cfg *Config) *Middleware {
	m := &Middleware{}
	if cfg != nil {
		m.trusted = cfg.TrustedProxies
	}
	return m
}

// Handler stores the resolved client IP with requestcontext.WithClientIP.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), m.clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	peer, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.isTrusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The left-most entry is the original client.
		first, _, _ := strings.Cut(xff, ",")
		if addr, ok := parseHeaderAddr(first); ok {
			return addr.String()
		}
		return peer.String()
	}
	if addr, ok := parseHeaderAddr(r.Header.Get("X-Real-IP")); ok {
		return addr.String()
	}
	return peer.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseHeaderAddr(value string) (netip.Addr, bool) {
	if value == "" || len(value) > maxForwardedHeaderLength {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

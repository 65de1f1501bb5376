package middleware

import (
	"net"
	"net/http"
	"strings"
)

// WithSubnet admits only requests whose client address lies inside cidr.
// The address comes from X-Real-IP, falling back to the connection peer.
// An empty or invalid cidr rejects everyone.
func WithSubnet(cidr string) func(next http.Handler) http.Handler {
	_, trusted, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		trusted = nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP")))
			if ip == nil {
				ip = net.ParseIP(RemoteHost(r.RemoteAddr))
			}

			if trusted == nil || ip == nil || !trusted.Contains(ip) {
				w.WriteHeader(http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RemoteHost strips the port from a host:port address.
func RemoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

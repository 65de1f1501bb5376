package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSubnet(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		cidr       string
		realIP     string
		remoteAddr string
		want       int
	}{
		{name: "real ip inside", cidr: "192.168.1.0/24", realIP: "192.168.1.42", remoteAddr: "10.0.0.1:1234", want: http.StatusOK},
		{name: "real ip outside", cidr: "192.168.1.0/24", realIP: "192.168.2.1", remoteAddr: "192.168.1.5:1234", want: http.StatusForbidden},
		{name: "remote addr fallback", cidr: "10.0.0.0/8", remoteAddr: "10.20.30.40:5555", want: http.StatusOK},
		{name: "garbage real ip falls back", cidr: "10.0.0.0/8", realIP: "nope", remoteAddr: "10.1.1.1:80", want: http.StatusOK},
		{name: "empty subnet denies", cidr: "", realIP: "127.0.0.1", remoteAddr: "127.0.0.1:80", want: http.StatusForbidden},
		{name: "invalid subnet denies", cidr: "not-a-cidr", realIP: "127.0.0.1", remoteAddr: "127.0.0.1:80", want: http.StatusForbidden},
		{name: "ipv6", cidr: "2001:db8::/32", realIP: "2001:db8::1", remoteAddr: "[::1]:80", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			rec := httptest.NewRecorder()

			WithSubnet(tt.cidr)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRemoteHost(t *testing.T) {
	assert.Equal(t, "10.0.0.1", RemoteHost("10.0.0.1:8080"))
	assert.Equal(t, "::1", RemoteHost("[::1]:80"))
	assert.Equal(t, "10.0.0.1", RemoteHost("10.0.0.1"))
}

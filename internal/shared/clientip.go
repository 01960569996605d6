package shared

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller's address, preferring the first entry of the
// X-Forwarded-For header and falling back to the direct connection address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

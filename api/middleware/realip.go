package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address. Forwarding headers are only
// honored when the deployment fronts the service with a trusted proxy,
// otherwise a guest could mint fresh quota by spoofing X-Forwarded-For.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		return clientIP(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

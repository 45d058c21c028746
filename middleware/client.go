package middleware

import (
	"net"
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

// ClientInfo copies the remote address and User-Agent into the request
// context for audit events and session records. Put a trusted proxy
// middleware (chi's RealIP, for example) in front when behind a proxy.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := goAccount.WithClientIP(r.Context(), ip)
		ctx = goAccount.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

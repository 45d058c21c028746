package goAccount

import "context"

// requestMeta is the caller information recorded on audit events and
// sessions. It travels in the context as one value.
type requestMeta struct {
	clientIP  string
	userAgent string
	sessionID string
}

type requestMetaKey struct{}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

func withMeta(ctx context.Context, set func(*requestMeta)) context.Context {
	m := metaFrom(ctx)
	set(&m)
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// audit events and hashed into new sessions.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.clientIP = ip })
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.userAgent = userAgent })
}

// WithSessionID tags ctx with the caller's session so audit events can be
// correlated.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.sessionID = sessionID })
}

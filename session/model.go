package session

import "time"

// Session is the server-side record behind an access token. Times are unix
// milliseconds.
type Session struct {
	SessionID     string
	AccountID     string
	IPHash        [32]byte
	UserAgentHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the session has lapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// Package session stores login sessions in Redis.
//
// Each record is a small versioned binary blob keyed by session id, with a
// per-account set index used to revoke all of an account's sessions when it
// is deactivated.
package session

// Package stores provides Redis-backed, short-lived record stores for the
// step-up flow: one-time codes and elevated-trust tickets.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL.
// Code consumption runs as a single Lua script so two concurrent validations of
// the same code cannot both succeed. Every expiry comparison uses the caller's
// clock reading, passed in as an argument, so one logical operation sees one
// "now". Secret comparisons finish with a constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate codes, enforce rate limits, or make
// authentication decisions. Those belong to the flow functions in
// internal/flows.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for secret matching.
package stores

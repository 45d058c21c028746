// Package internal contains helpers that are private to goAccount: secure
// random generation of one-time codes, ticket ids and session ids, the
// digest used to store one-time codes and the client IP/User-Agent digest
// kept on sessions.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - limiters: step-up throttles
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window Redis counter primitive
//   - security: policy report behind Engine.SecurityReport
//   - stores: Redis stores for one-time codes and elevated tickets
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAccount API.
//   - Be imported by any package outside the goAccount module.
package internal

// Package middleware adapts goAccount.Engine checks to net/http.
//
//   - [RequireSession] validates the bearer access token and stores the
//     session in the request context.
//   - [RequireStepUp] demands an elevated ticket for one purpose, read from
//     the [TicketHeader] header.
//   - [ClientInfo] records the caller's IP and User-Agent for audit.
//
// All decisions are delegated to the engine. The middleware never parses
// tokens or touches Redis itself.
package middleware

// Package rate provides the fixed-window Redis counter that the step-up
// limiters are built on.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit. A key is rejected once its count
// reaches the configured limit and stays rejected until the window expires or
// the key is reset.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goAccount module.
package rate

// Package limiters provides domain-specific throttles built on the
// internal/rate fixed-window counter.
//
// # Limiters
//
//   - [StepUpLimiter]: per-account password re-entry failures and
//     per-(account, purpose) wrong-code failures during step-up.
//
// All limiter methods are nil-safe: calling any method on a nil receiver
// returns nil.
//
// Login failures live on the account record and are mutated only through the
// store's compare-and-set, never here.
//
// # What this package must NOT do
//
//   - Import goAccount or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters

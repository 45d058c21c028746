// Package goAccount guards account access for services that keep their own
// account records: a login guard with per-account lockout, an account
// lifecycle with a recovery window before permanent deletion, and a step-up
// gate that trades a password re-check plus a one-time code for a
// short-lived elevated ticket.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Accounts live in the host's [AccountStore]; one-time
// codes, tickets, sessions and step-up throttles live in Redis.
//
// # Concurrency
//
// Every write to an account's failure state or status is a compare-and-set
// against the value the request read. A request that loses the race re-reads
// and decides again with the clock reading it took on entry, so concurrent
// wrong-secret attempts each count exactly once and a lockout is never
// skipped.
//
// # Clock
//
// Each operation reads the engine clock once. Inject a clock with
// [Builder.WithClock] for tests.
package goAccount

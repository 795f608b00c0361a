// Package rate implements the brute-force login guard.
//
// # Counters
//
// Two counters are kept per login attempt, both with a sliding TTL equal to
// the lockout duration:
//   - email:<normalized email>  targeted-account attacks
//   - ip:<client ip>            spraying across many accounts from one source
//
// Increments are delegated to the counter store, which must apply
// increment-with-expiry atomically.
//
// # What this package must NOT do
//
//   - Verify credentials or touch refresh/blacklist state.
//   - Read-then-write a counter in application code.
package rate

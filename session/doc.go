// Package session provides the Redis-backed store that holds all mutable
// authentication state: refresh-token entries, the access-token blacklist
// and login-attempt counters.
//
// # Atomicity
//
// Every operation maps to one Redis command or one Lua script. Rotation
// uses [Store.RotateRefresh], which deletes the old entry and writes its
// successor in one script, and attempt counters use an INCR+PEXPIRE
// script, so concurrent callers never lose updates.
//
// # Architecture boundaries
//
// This package owns key layout and Redis I/O. It does NOT parse tokens or
// decide lockout policy; those belong to the jwt package, the rate guard
// and the engine.
//
// # What this package must NOT do
//
//   - Import sessionauth, jwt, or internal/flows (no upward imports).
//   - Store raw access tokens (blacklist keys are [TokenDigest] values).
//   - Retry failed commands; failures surface wrapped in [ErrUnavailable].
package session

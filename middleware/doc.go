// Package middleware adapts [sessionauth.Engine] to net/http.
//
// [Guard] reads the bearer token, calls Engine.Authenticate and stores the
// resulting principal in the request context. Which routes skip
// authentication is decided by a [Policies] table, not by per-handler
// decoration. [WriteError] renders any engine error with the matching
// status code, Retry-After and WWW-Authenticate headers.
//
// The package makes no authentication decisions of its own.
package middleware

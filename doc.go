// Package sessionauth is a stateless authentication engine: password login
// with brute-force lockout, short-lived signed access tokens, rotating
// refresh tokens and explicit revocation, all backed by a shared Redis
// store.
//
// Engine instances keep no per-user state in memory. Refresh entries, the
// access-token blacklist and login-attempt counters live in Redis, so any
// number of engines behind a load balancer observe the same revocations.
//
// # Operations
//
//	Login         email+password -> TokenPair   (lockout checked first)
//	Refresh       refresh token  -> TokenPair   (old entry swapped atomically)
//	Logout        access token   -> blacklisted; one or all refresh entries removed
//	LogoutAll     subject        -> every refresh entry removed
//	Authenticate  access token   -> Principal   (1 Redis round trip)
//
// Every failure is an [*AuthError] that unwraps to a package sentinel such
// as [ErrLockedOut] or [ErrTokenRevoked]. Credential failures never reveal
// whether the email exists.
//
// # Store outages
//
// Login, Refresh and Logout fail closed with [ErrStoreUnavailable].
// Authenticate does the same unless Security.FailOpenOnStoreOutage is set,
// in which case a token that verifies is admitted without the blacklist
// check and the event is counted and audited.
//
// # Construction
//
//	engine, err := sessionauth.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithUserStore(users).
//		WithLogger(logger).
//		Build()
package sessionauth

// Package flows contains the orchestration logic behind every Engine
// operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunAuthenticate)
// accepts a typed dependency struct and returns a result carrying either
// the success payload or a classified failure. The root package maps
// failure kinds to public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, session store, login guard
// and user lookup. They do NOT own any of these resources; ownership stays
// with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Log tokens or passwords.
package flows

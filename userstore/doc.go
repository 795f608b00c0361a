// Package userstore provides [sessionauth.UserStore] implementations.
//
// [Memory] keeps identities in a map and suits tests and the -dev mode of
// authd. [Postgres] reads a users table through a pgx pool. Both verify
// passwords with a [password.Verifier] and expose its dummy hash, so login
// spends the same hashing work whether or not the email exists.
package userstore

// Package jwt issues and verifies the access and refresh tokens handed out
// by the engine. Verification failures collapse onto four sentinels
// (ErrExpired, ErrMalformed, ErrSignatureInvalid, ErrNotYetValid) so callers
// can branch without knowing golang-jwt's error tree.
package jwt

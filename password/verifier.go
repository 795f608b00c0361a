package password

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Verifier hashes new passwords with Argon2id and verifies either Argon2id
// or bcrypt hashes, picking the algorithm from the hash prefix. Its
// ValidatePassword and DummyHash methods plug straight into a
// sessionauth.UserStore implementation.
type Verifier struct {
	argon  *Argon2
	bcrypt *Bcrypt
	dummy  string
}

// NewVerifier builds a Verifier and precomputes the dummy hash used for
// unknown accounts.
func NewVerifier(p Params) (*Verifier, error) {
	a, err := NewArgon2(p)
	if err != nil {
		return nil, err
	}
	b, err := NewBcrypt(0)
	if err != nil {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := a.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	return &Verifier{argon: a, bcrypt: b, dummy: dummy}, nil
}

// Hash produces an Argon2id PHC string.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify checks password against encoded.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	switch {
	case isBcrypt(encoded):
		return v.bcrypt.Verify(password, encoded)
	default:
		return v.argon.Verify(password, encoded)
	}
}

// NeedsRehash reports whether encoded should be replaced by a fresh
// Argon2id hash.
func (v *Verifier) NeedsRehash(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return v.bcrypt.NeedsRehash(encoded)
	}
	return v.argon.NeedsRehash(encoded)
}

// ValidatePassword is Verify collapsed to a bool; malformed hashes never
// match.
func (v *Verifier) ValidatePassword(plain, encoded string) bool {
	ok, err := v.Verify(plain, encoded)
	return err == nil && ok
}

// DummyHash is an Argon2id hash of a random secret with the verifier's
// own cost, so checking against it takes as long as a real account.
func (v *Verifier) DummyHash() string {
	return v.dummy
}

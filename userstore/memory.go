package userstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/google/uuid"
)

var (
	ErrDuplicateEmail = errors.New("userstore: email already registered")
	ErrUnknownUser    = errors.New("userstore: unknown user")
)

// Memory is an in-process UserStore. It is safe for concurrent use.
type Memory struct {
	verifier *password.Verifier

	mu      sync.RWMutex
	byID    map[string]*sessionauth.Identity
	byEmail map[string]string
}

var _ sessionauth.UserStore = (*Memory)(nil)

// NewMemory returns an empty store hashing with verifier.
func NewMemory(verifier *password.Verifier) *Memory {
	return &Memory{
		verifier: verifier,
		byID:     make(map[string]*sessionauth.Identity),
		byEmail:  make(map[string]string),
	}
}

// Add hashes plain and stores a new active identity. An empty ID is
// replaced with a random UUID. The stored identity is returned.
func (m *Memory) Add(id, email, username, role, plain string) (sessionauth.Identity, error) {
	hash, err := m.verifier.Hash(plain)
	if err != nil {
		return sessionauth.Identity{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	ident := &sessionauth.Identity{
		ID:           id,
		Email:        normalizeEmail(email),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[ident.Email]; ok {
		return sessionauth.Identity{}, ErrDuplicateEmail
	}
	if old, ok := m.byID[id]; ok {
		delete(m.byEmail, old.Email)
	}
	m.byID[id] = ident
	m.byEmail[ident.Email] = id
	return *ident, nil
}

// SetActive flips the Active flag. Deactivated subjects lose every refresh
// token on their next refresh attempt.
func (m *Memory) SetActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.byID[id]
	if !ok {
		return ErrUnknownUser
	}
	ident.Active = active
	return nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*sessionauth.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	out := *m.byID[id]
	return &out, nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*sessionauth.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	out := *ident
	return &out, nil
}

func (m *Memory) ValidatePassword(plain, hash string) bool {
	return m.verifier.ValidatePassword(plain, hash)
}

// DummyHash is compared against when the email is unknown.
func (m *Memory) DummyHash() string {
	return m.verifier.DummyHash()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

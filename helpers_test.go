package sessionauth

import (
	"context"
	"crypto/ed25519"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testUserStore treats "plain:<password>" as the stored hash.
type testUserStore struct {
	mu     sync.Mutex
	users  map[string]*Identity
	lookup atomic.Int64
	fail   error
}

func newTestUserStore() *testUserStore {
	return &testUserStore{users: map[string]*Identity{}}
}

func (s *testUserStore) add(id, email, password string) *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &Identity{
		ID:           id,
		Email:        email,
		Username:     id,
		PasswordHash: "plain:" + password,
		Role:         "member",
		Active:       true,
	}
	s.users[id] = u
	return u
}

func (s *testUserStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Active = active
}

func (s *testUserStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	s.lookup.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *testUserStore) FindByID(_ context.Context, id string) (*Identity, error) {
	s.lookup.Add(1)
	if s.fail != nil {
		return nil, s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *testUserStore) ValidatePassword(plain, hash string) bool {
	return hash == "plain:"+plain
}

func (s *testUserStore) DummyHash() string {
	return "plain:\x00"
}

type testHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *testUserStore
	clock  *testClock
	sink   *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningKeys = map[string][]byte{
		"default": ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)),
	}
	cfg.JWT.Issuer = "sessionauth-test"
	cfg.Store.OperationTimeout = time.Second
	return cfg
}

func newTestHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newTestUserStore()
	users.add("u-alice", "alice@example.com", "correct-horse")
	users.add("u-bob", "bob@example.com", "battery-staple")

	clock := &testClock{now: time.Now().Truncate(time.Second)}
	sink := NewChannelSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithClock(clock.Now).
		WithAuditSink(sink).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testHarness{
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		users:  users,
		clock:  clock,
		sink:   sink,
	}
}

// advance moves the token clock and the store clock together.
func (h *testHarness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.mr.FastForward(d)
}

func (h *testHarness) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), LoginRequest{
		Email:    email,
		Password: password,
		IP:       "198.51.100.7",
	})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

// drainAudit collects buffered events once the dispatcher has delivered
// want of them.
func (h *testHarness) drainAudit(t *testing.T, want int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, want)
	deadline := time.After(2 * time.Second)
	for len(out) < want {
		select {
		case ev := <-h.sink.Events():
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("audit: got %d events, want %d", len(out), want)
		}
	}
	return out
}

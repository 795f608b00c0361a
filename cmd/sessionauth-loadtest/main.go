// Command sessionauth-loadtest measures Authenticate and Refresh
// throughput against Redis (or an in-process miniredis).
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "load-test-password"

type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

// loadUsers skips password hashing so the phases measure the engine and
// the store rather than Argon2.
type loadUsers struct {
	byEmail map[string]*sessionauth.Identity
	byID    map[string]*sessionauth.Identity
}

func newLoadUsers(n int) *loadUsers {
	u := &loadUsers{
		byEmail: make(map[string]*sessionauth.Identity, n),
		byID:    make(map[string]*sessionauth.Identity, n),
	}
	for i := 0; i < n; i++ {
		ident := &sessionauth.Identity{
			ID:           fmt.Sprintf("u-%d", i),
			Email:        fmt.Sprintf("user%d@load.test", i),
			PasswordHash: loadPassword,
			Role:         "member",
			Active:       true,
		}
		u.byEmail[ident.Email] = ident
		u.byID[ident.ID] = ident
	}
	return u
}

func (u *loadUsers) FindByEmail(_ context.Context, email string) (*sessionauth.Identity, error) {
	if ident, ok := u.byEmail[email]; ok {
		out := *ident
		return &out, nil
	}
	return nil, nil
}

func (u *loadUsers) FindByID(_ context.Context, id string) (*sessionauth.Identity, error) {
	if ident, ok := u.byID[id]; ok {
		out := *ident
		return &out, nil
	}
	return nil, nil
}

func (u *loadUsers) ValidatePassword(plain, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(plain), []byte(hash)) == 1
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		users       = flag.Int("users", 1000, "number of distinct subjects")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sa", "store key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := sessionauth.DefaultConfig()
	cfg.JWT.SigningKeys = map[string][]byte{cfg.JWT.ActiveKeyID: newSigningKey()}
	cfg.Store.KeyPrefix = *prefix
	cfg.Store.OperationTimeout = 2 * time.Second

	engine, err := sessionauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(newLoadUsers(*users)).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		res, err := engine.Login(ctx, sessionauth.LoginRequest{
			Email:    fmt.Sprintf("user%d@load.test", i%*users),
			Password: loadPassword,
			IP:       "192.0.2.1",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].access = res.Tokens.AccessToken
		states[i].refresh = res.Tokens.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runAuthenticatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snapshot := engine.MetricsSnapshot()
	fmt.Printf("store_unavailable=%d refresh_revoked=%d\n",
		snapshot.Counters[sessionauth.MetricStoreUnavailable],
		snapshot.Counters[sessionauth.MetricRefreshRevoked])
}

func newSigningKey() []byte {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	return priv
}

func runAuthenticatePhase(ctx context.Context, engine *sessionauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				_, err := engine.Authenticate(ctx, states[idx].access)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRefreshPhase rotates under a per-session lock so each refresh token
// is presented exactly once; any failure is a real rotation error.
func runRefreshPhase(ctx context.Context, engine *sessionauth.Engine, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := engine.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

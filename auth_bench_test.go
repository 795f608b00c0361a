package sessionauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B) (*Engine, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	users := newTestUserStore()
	users.add("u-alice", "alice@example.com", "correct-horse")

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func BenchmarkAuthenticate(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "correct-horse"})
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authenticate(context.Background(), res.Tokens.AccessToken); err != nil {
			b.Fatalf("authenticate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	res, err := engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "correct-horse"})
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	refresh := res.Tokens.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkLoginLogout(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := engine.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "correct-horse"})
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		if err := engine.Logout(context.Background(), LogoutRequest{
			SubjectID:      res.Identity.ID,
			AccessToken:    res.Tokens.AccessToken,
			RefreshTokenID: res.Tokens.RefreshTokenID,
		}); err != nil {
			b.Fatalf("logout failed: %v", err)
		}
	}
}

package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newGuardTest(t *testing.T, cfg Config) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewGuard(session.NewStore(rdb, "sa"), cfg), mr
}

func TestGuardLocksEmailAfterThreshold(t *testing.T) {
	g, mr := newGuardTest(t, Config{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		locked, err := g.RecordFailure(ctx, "A@x.com", "")
		if err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
		if locked {
			t.Fatalf("locked too early at attempt %d", i+1)
		}
	}
	if err := g.Check(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected 4 failures to stay under threshold, got %v", err)
	}

	locked, err := g.RecordFailure(ctx, "a@x.com ", "")
	if err != nil || !locked {
		t.Fatalf("expected fifth failure to lock, locked=%v err=%v", locked, err)
	}

	err = g.Check(ctx, "a@X.com", "")
	if !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
	var lockErr *LockoutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockoutError, got %T", err)
	}
	if lockErr.Scope != ScopeEmail {
		t.Fatalf("expected email scope, got %s", lockErr.Scope)
	}
	if lockErr.RetryAfter <= 0 || lockErr.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected retry after %v", lockErr.RetryAfter)
	}

	mr.FastForward(15*time.Minute + time.Second)
	if err := g.Check(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected lockout to lapse, got %v", err)
	}
}

func TestGuardLocksIPAcrossEmails(t *testing.T) {
	g, _ := newGuardTest(t, Config{MaxLoginAttempts: 5, MaxIPAttempts: 3, LockoutDuration: time.Minute})
	ctx := context.Background()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		if _, err := g.RecordFailure(ctx, email, "10.0.0.9"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	var lockErr *LockoutError
	if err := g.Check(ctx, "fresh@x.com", "10.0.0.9"); !errors.As(err, &lockErr) || lockErr.Scope != ScopeIP {
		t.Fatalf("expected ip lockout, got %v", err)
	}
	if err := g.Check(ctx, "fresh@x.com", "10.0.0.10"); err != nil {
		t.Fatalf("other ip must not be locked, got %v", err)
	}
}

func TestGuardRecordSuccessClearsBothCounters(t *testing.T) {
	g, _ := newGuardTest(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.RecordFailure(ctx, "a@x.com", "10.0.0.1"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	st, err := g.Status(ctx, "a@x.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.EmailAttempts != 3 || st.IPAttempts != 3 || st.Locked {
		t.Fatalf("unexpected status %+v", st)
	}

	if err := g.RecordSuccess(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("record success: %v", err)
	}
	st, err = g.Status(ctx, "a@x.com", "10.0.0.1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.EmailAttempts != 0 || st.IPAttempts != 0 {
		t.Fatalf("expected counters reset, got %+v", st)
	}
}

func TestGuardStoreOutageIsUnavailable(t *testing.T) {
	g, mr := newGuardTest(t, Config{})
	ctx := context.Background()
	mr.SetError("ERR backend down")

	if err := g.Check(ctx, "a@x.com", "10.0.0.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("check: expected ErrUnavailable, got %v", err)
	}
	if _, err := g.RecordFailure(ctx, "a@x.com", "10.0.0.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("record failure: expected ErrUnavailable, got %v", err)
	}
}

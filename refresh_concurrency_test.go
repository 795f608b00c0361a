package sessionauth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	h := newTestHarness(t, nil)
	res := h.login(t, "alice@example.com", "correct-horse")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.Refresh(context.Background(), res.Tokens.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	revoked := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrTokenRevoked) {
			revoked++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if revoked != n-1 {
		t.Fatalf("expected %d revoked refreshes, got %d", n-1, revoked)
	}

	ids, err := h.engine.ActiveRefreshIDs(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one live refresh entry after rotation, got %d", len(ids))
	}
}

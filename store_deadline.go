package sessionauth

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionauth/session"
)

// deadlineStore bounds every session store call with the configured
// operation timeout. It satisfies the flow store interfaces and
// rate.CounterStore.
type deadlineStore struct {
	store   *session.Store
	timeout time.Duration
}

func (d deadlineStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d deadlineStore) StoreRefresh(ctx context.Context, subjectID, tokenID string, ttl time.Duration) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.StoreRefresh(ctx, subjectID, tokenID, ttl)
}

func (d deadlineStore) IsRefreshValid(ctx context.Context, subjectID, tokenID string) (bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.IsRefreshValid(ctx, subjectID, tokenID)
}

func (d deadlineStore) RotateRefresh(ctx context.Context, subjectID, oldID, newID string, ttl time.Duration) (bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.RotateRefresh(ctx, subjectID, oldID, newID, ttl)
}

func (d deadlineStore) RemoveRefresh(ctx context.Context, subjectID, tokenID string) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.RemoveRefresh(ctx, subjectID, tokenID)
}

func (d deadlineStore) RemoveAllRefresh(ctx context.Context, subjectID string) (int, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.RemoveAllRefresh(ctx, subjectID)
}

func (d deadlineStore) ActiveRefreshIDs(ctx context.Context, subjectID string) ([]string, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.ActiveRefreshIDs(ctx, subjectID)
}

func (d deadlineStore) Blacklist(ctx context.Context, tokenKey string, ttl time.Duration) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.Blacklist(ctx, tokenKey, ttl)
}

func (d deadlineStore) IsBlacklisted(ctx context.Context, tokenKey string) (bool, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.IsBlacklisted(ctx, tokenKey)
}

func (d deadlineStore) IncrementAttempts(ctx context.Context, identifier string, ttl time.Duration) (int64, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.IncrementAttempts(ctx, identifier, ttl)
}

func (d deadlineStore) GetAttempts(ctx context.Context, identifier string) (int64, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.GetAttempts(ctx, identifier)
}

func (d deadlineStore) AttemptsTTL(ctx context.Context, identifier string) (time.Duration, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.AttemptsTTL(ctx, identifier)
}

func (d deadlineStore) ResetAttempts(ctx context.Context, identifiers ...string) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.ResetAttempts(ctx, identifiers...)
}

func (d deadlineStore) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.store.Ping(ctx)
}

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
)

func TestPurgeExpiredClearsOnlyExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	stale := &domain.User{Email: "stale@example.com"}
	fresh := &domain.User{Email: "fresh@example.com"}
	require.NoError(t, store.Users().Create(ctx, stale))
	require.NoError(t, store.Users().Create(ctx, fresh))

	require.NoError(t, store.PasswordResets().Replace(ctx, &domain.PasswordReset{UserID: stale.ID, TokenHash: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, store.PasswordResets().Replace(ctx, &domain.PasswordReset{UserID: fresh.ID, TokenHash: "new", ExpiresAt: now.Add(time.Hour)}))

	require.NoError(t, store.AccountRecoveries().Save(ctx, &domain.AccountRecovery{UserID: stale.ID}))
	require.NoError(t, store.AccountRecoveries().IssueToken(ctx, stale.ID, "rec-old", now.Add(-time.Hour)))

	metrics := observability.NewMetrics()
	s := NewScheduler(store.PasswordResets(), store.AccountRecoveries(), metrics, nil)
	s.now = func() time.Time { return now }

	s.PurgeExpired()

	_, err := store.PasswordResets().Redeem(ctx, "old", "hash", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.PasswordResets().Redeem(ctx, "new", "hash", now)
	assert.NoError(t, err)

	rec, err := store.AccountRecoveries().Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.TokenHash)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.JobRuns[jobPurgeResets+"|ok"])
	assert.Equal(t, int64(1), snap.JobRuns[jobPurgeRecoveries+"|ok"])
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	store := memory.New()
	s := NewScheduler(store.PasswordResets(), store.AccountRecoveries(), nil, nil)

	assert.Error(t, s.Start("not a schedule"))
}

func TestStartAndStop(t *testing.T) {
	store := memory.New()
	s := NewScheduler(store.PasswordResets(), store.AccountRecoveries(), nil, nil)
	require.NoError(t, s.Start("0 */15 * * * *"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}

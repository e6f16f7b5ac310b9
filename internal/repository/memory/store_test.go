package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

func TestUsersEmailIsCaseInsensitive(t *testing.T) {
	users := New().Users()
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, &domain.User{Email: "Ada@Example.com", Name: "Ada"}))
	err := users.Create(ctx, &domain.User{Email: "ada@example.COM", Name: "Other"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	u, err := users.GetByEmail(ctx, "  ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
}

func TestUsersSingleOwner(t *testing.T) {
	users := New().Users()
	ctx := context.Background()

	owner := &domain.User{Email: "root@example.com"}
	require.NoError(t, users.CreateOwner(ctx, owner))
	assert.ErrorIs(t, users.CreateOwner(ctx, &domain.User{Email: "other@example.com"}), repository.ErrOwnerExists)
	assert.ErrorIs(t, users.Delete(ctx, owner.ID), repository.ErrNotFound)
}

func TestUsersTargetedWritesKeepOtherColumns(t *testing.T) {
	users := New().Users()
	ctx := context.Background()

	exists, err := users.OwnerExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, users.CreateOwner(ctx, &domain.User{Email: "root@example.com"}))
	exists, err = users.OwnerExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	u := &domain.User{Email: "ada@example.com", Name: "Ada", PasswordHash: "old"}
	require.NoError(t, users.Create(ctx, u))

	now := time.Now().UTC()
	end := now.Add(time.Hour)
	suspension := domain.Suspension{Reason: "Abuse", Category: domain.SuspensionSpam, SuspendedBy: "root", SuspendedAt: now, EndsAt: &end}
	_, err = users.Suspend(ctx, u.ID, suspension, []domain.Role{domain.RoleUser})
	require.NoError(t, err)

	bio := "Mathematician"
	updated, err := users.UpdateProfile(ctx, u.ID, repository.ProfileChanges{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Mathematician", updated.Bio)
	assert.Equal(t, "Ada", updated.Name)
	assert.False(t, updated.IsActive)

	require.NoError(t, users.UpdatePassword(ctx, u.ID, "new"))
	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", stored.PasswordHash)
	require.NotNil(t, stored.Suspension)
	assert.Equal(t, "Abuse", stored.Suspension.Reason)

	lifted, err := users.LiftExpiredSuspension(ctx, u.ID, now)
	require.NoError(t, err)
	assert.False(t, lifted, "suspension has not ended yet")
	lifted, err = users.LiftExpiredSuspension(ctx, u.ID, end)
	require.NoError(t, err)
	assert.True(t, lifted)
	lifted, err = users.LiftExpiredSuspension(ctx, u.ID, end)
	require.NoError(t, err)
	assert.False(t, lifted)
}

func TestUsersRoleGuardedWrites(t *testing.T) {
	users := New().Users()
	ctx := context.Background()

	owner := &domain.User{Email: "root@example.com"}
	require.NoError(t, users.CreateOwner(ctx, owner))
	admin := &domain.User{Email: "admin@example.com", Role: domain.RoleAdmin}
	require.NoError(t, users.Create(ctx, admin))

	suspension := domain.Suspension{Reason: "Abuse", Category: domain.SuspensionSpam, SuspendedBy: "x", SuspendedAt: time.Now()}
	_, err := users.Suspend(ctx, admin.ID, suspension, []domain.Role{domain.RoleUser})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.Suspend(ctx, owner.ID, suspension, []domain.Role{domain.RoleAdmin, domain.RoleUser, domain.RoleOwner})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.SetRole(ctx, admin.ID, domain.RoleUser, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.SetRole(ctx, admin.ID, domain.RoleOwner, []domain.Role{domain.RoleAdmin})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = users.Suspend(ctx, admin.ID, domain.Suspension{SuspendedBy: "x"}, []domain.Role{domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrSuspensionReasonRequired)

	demoted, err := users.SetRole(ctx, admin.ID, domain.RoleUser, []domain.Role{domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, demoted.Role)

	stored, err := users.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestConsumeBackupCodeExactlyOnce(t *testing.T) {
	store := New()
	tf := store.TwoFactor()
	ctx := context.Background()

	require.NoError(t, tf.SavePending(ctx, &domain.TwoFactor{UserID: "u-1", Secret: "S", BackupCodes: []string{"h1", "h2"}}))
	require.NoError(t, tf.Enable(ctx, "u-1", time.Now()))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tf.ConsumeBackupCode(ctx, "u-1", "h1", time.Now())
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	rec, err := tf.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h2"}, rec.BackupCodes)
}

func TestRedeemPasswordResetOnce(t *testing.T) {
	store := New()
	ctx := context.Background()
	user := &domain.User{Email: "ada@example.com", PasswordHash: "old"}
	require.NoError(t, store.Users().Create(ctx, user))

	now := time.Now()
	require.NoError(t, store.PasswordResets().Replace(ctx, &domain.PasswordReset{
		UserID: user.ID, TokenHash: "th", ExpiresAt: now.Add(time.Hour),
	}))

	userID, err := store.PasswordResets().Redeem(ctx, "th", "new", now)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = store.PasswordResets().Redeem(ctx, "th", "newer", now)
	assert.ErrorIs(t, err, repository.ErrTokenAlreadyUsed)

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
}

func TestRedeemExpiredPasswordReset(t *testing.T) {
	store := New()
	ctx := context.Background()
	user := &domain.User{Email: "ada@example.com", PasswordHash: "old"}
	require.NoError(t, store.Users().Create(ctx, user))

	now := time.Now()
	require.NoError(t, store.PasswordResets().Replace(ctx, &domain.PasswordReset{
		UserID: user.ID, TokenHash: "th", ExpiresAt: now.Add(-time.Second),
	}))

	_, err := store.PasswordResets().Redeem(ctx, "th", "new", now)
	assert.ErrorIs(t, err, repository.ErrTokenExpired)
}

func TestLoginDeviceRecordReportsPreviousUse(t *testing.T) {
	devices := New().LoginDevices()
	ctx := context.Background()
	first := time.Now().Add(-time.Hour)

	prev, err := devices.Record(ctx, &domain.LoginDevice{UserID: "u-1", DeviceID: "d-1", LastUsed: first})
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = devices.Record(ctx, &domain.LoginDevice{UserID: "u-1", DeviceID: "d-1", LastUsed: time.Now()})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.WithinDuration(t, first, *prev, time.Millisecond)
}

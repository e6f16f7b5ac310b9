package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspendSetsAllFieldsTogether(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &User{ID: "u1", Role: RoleUser, IsActive: true}

	require.NoError(t, u.Suspend("admin-1", " spam links ", SuspensionSpam, 48*time.Hour, now))

	assert.False(t, u.IsActive)
	require.NotNil(t, u.Suspension)
	assert.Equal(t, "spam links", u.Suspension.Reason)
	assert.Equal(t, "admin-1", u.Suspension.SuspendedBy)
	assert.Equal(t, SuspensionSpam, u.Suspension.Category)
	require.NotNil(t, u.Suspension.EndsAt)
	assert.Equal(t, now.Add(48*time.Hour), *u.Suspension.EndsAt)
	assert.NoError(t, u.ValidateSuspension())
}

func TestSuspendRejectsOwnerAndMissingFields(t *testing.T) {
	now := time.Now()

	owner := &User{Role: RoleOwner, IsActive: true}
	assert.ErrorIs(t, owner.Suspend("a", "r", SuspensionOther, 0, now), ErrOwnerNotSuspendable)
	assert.True(t, owner.IsActive)

	u := &User{Role: RoleUser, IsActive: true}
	assert.ErrorIs(t, u.Suspend("a", "   ", SuspensionOther, 0, now), ErrSuspensionReasonRequired)
	assert.ErrorIs(t, u.Suspend("", "reason", SuspensionOther, 0, now), ErrSuspensionActorRequired)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.Suspension)
}

func TestReactivateClearsSuspension(t *testing.T) {
	u := &User{Role: RoleUser, IsActive: true}
	require.NoError(t, u.Suspend("a", "abuse", SuspensionAbuse, 0, time.Now()))

	u.Reactivate()

	assert.True(t, u.IsActive)
	assert.Nil(t, u.Suspension)
	assert.NoError(t, u.ValidateSuspension())
}

func TestValidateSuspensionDetectsMismatch(t *testing.T) {
	active := &User{IsActive: true, Suspension: &Suspension{Reason: "x", SuspendedBy: "a"}}
	assert.ErrorIs(t, active.ValidateSuspension(), ErrSuspensionInconsistent)

	inactive := &User{IsActive: false}
	assert.ErrorIs(t, inactive.ValidateSuspension(), ErrSuspensionInconsistent)

	noActor := &User{IsActive: false, Suspension: &Suspension{Reason: "x"}}
	assert.ErrorIs(t, noActor.ValidateSuspension(), ErrSuspensionInconsistent)
}

func TestReconcileSuspension(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("expired suspension is lifted", func(t *testing.T) {
		u := User{Role: RoleUser, IsActive: true}
		require.NoError(t, u.Suspend("a", "temp", SuspensionOther, time.Hour, now.Add(-2*time.Hour)))

		got, changed := ReconcileSuspension(u, now)
		assert.True(t, changed)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.Suspension)
		assert.False(t, u.IsActive, "input must not be mutated")
	})

	t.Run("running suspension is kept", func(t *testing.T) {
		u := User{Role: RoleUser, IsActive: true}
		require.NoError(t, u.Suspend("a", "temp", SuspensionOther, 3*time.Hour, now.Add(-time.Hour)))

		got, changed := ReconcileSuspension(u, now)
		assert.False(t, changed)
		assert.False(t, got.IsActive)
	})

	t.Run("indefinite suspension is kept", func(t *testing.T) {
		u := User{Role: RoleUser, IsActive: true}
		require.NoError(t, u.Suspend("a", "forever", SuspensionOther, 0, now.Add(-365*24*time.Hour)))

		_, changed := ReconcileSuspension(u, now)
		assert.False(t, changed)
	})
}

func TestParseSuspensionCategory(t *testing.T) {
	c, ok := ParseSuspensionCategory("VIOLATION")
	assert.True(t, ok)
	assert.Equal(t, SuspensionViolation, c)

	c, ok = ParseSuspensionCategory("")
	assert.True(t, ok)
	assert.Equal(t, SuspensionOther, c)

	_, ok = ParseSuspensionCategory("bogus")
	assert.False(t, ok)
}

func TestIsSuspendedNeverTrueForOwner(t *testing.T) {
	owner := &User{Role: RoleOwner, IsActive: false}
	assert.False(t, owner.IsSuspended())

	u := &User{Role: RoleAdmin, IsActive: false}
	assert.True(t, u.IsSuspended())
}

func TestAdminViewHidesSuspensionWhenActive(t *testing.T) {
	u := &User{ID: "u", Email: "a@b.c", Role: RoleUser, IsActive: true, PasswordHash: "secret"}
	view := u.AdminView()
	require.NotNil(t, view.Status)
	assert.True(t, view.Status.IsActive)
	assert.Nil(t, view.Status.SuspendedAt)
}

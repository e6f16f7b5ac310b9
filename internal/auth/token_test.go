package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tm := NewTokenManager("secret", "issuer", time.Hour, WithClock(func() time.Time { return now }))
	user := &domain.User{ID: "u-1", Email: "ada@example.com", Role: domain.RoleAdmin}

	token, exp, err := tm.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	claims, err := tm.VerifyPurpose(token, domain.TokenPurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, time.Hour, tm.Remaining(claims))
}

func TestVerifyRejectsExpiredTamperedAndForeignTokens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tm := NewTokenManager("secret", "issuer", time.Hour, WithClock(clock))
	token, _, err := tm.Issue(&domain.User{ID: "u-1"})
	require.NoError(t, err)

	other := NewTokenManager("other-secret", "issuer", time.Hour, WithClock(clock))
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("secret", "issuer", time.Hour, WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{UserID: "u-1", Purpose: domain.TokenPurposeAccess, RegisteredClaims: jwt.RegisteredClaims{
		ID:        "jti",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", "issuer", time.Hour).Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPurposeIsEnforced(t *testing.T) {
	tm := NewTokenManager("secret", "issuer", time.Hour, WithHandoffTTL(10*time.Minute))

	handoff, exp, err := tm.IssueRecoveryHandoff("u-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)

	_, err = tm.VerifyPurpose(handoff, domain.TokenPurposeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := tm.VerifyPurpose(handoff, domain.TokenPurposeRecovery)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestTTLIsCappedAtOneDay(t *testing.T) {
	now := time.Now()
	tm := NewTokenManager("secret", "issuer", 72*time.Hour, WithClock(func() time.Time { return now }))

	_, exp, err := tm.Issue(&domain.User{ID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(MaxAccessTTL), exp)
}

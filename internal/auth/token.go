package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
)

// MaxAccessTTL caps the lifetime of bearer tokens.
const MaxAccessTTL = 24 * time.Hour

// ErrInvalidToken covers bad signatures, malformed tokens and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager handles issuing and validating JWT tokens. It holds no
// mutable state.
type TokenManager struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	handoffTTL time.Duration
	now        func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) { tm.now = now }
}

// WithHandoffTTL sets the lifetime of recovery handoff tokens.
func WithHandoffTTL(ttl time.Duration) TokenOption {
	return func(tm *TokenManager) {
		if ttl > 0 {
			tm.handoffTTL = ttl
		}
	}
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret, issuer string, ttl time.Duration, opts ...TokenOption) *TokenManager {
	if ttl <= 0 || ttl > MaxAccessTTL {
		ttl = MaxAccessTTL
	}
	tm := &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		handoffTTL: 15 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Claims describes JWT payload.
type Claims struct {
	UserID  string              `json:"id"`
	Email   string              `json:"email,omitempty"`
	Role    domain.Role         `json:"role,omitempty"`
	Purpose domain.TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Issue builds and signs an access token for the user.
func (tm *TokenManager) Issue(user *domain.User) (string, time.Time, error) {
	return tm.sign(&Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		Purpose: domain.TokenPurposeAccess,
	}, tm.ttl)
}

// IssueRecoveryHandoff signs a short-lived token that authorizes setting a
// new password after account recovery.
func (tm *TokenManager) IssueRecoveryHandoff(userID string) (string, time.Time, error) {
	return tm.sign(&Claims{
		UserID:  userID,
		Purpose: domain.TokenPurposeRecovery,
	}, tm.handoffTTL)
}

func (tm *TokenManager) sign(claims *Claims, ttl time.Duration) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    tm.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify validates the signature and expiry and returns the claims.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyPurpose verifies the token and checks that it was minted for purpose.
func (tm *TokenManager) VerifyPurpose(tokenStr string, purpose domain.TokenPurpose) (*Claims, error) {
	claims, err := tm.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Remaining returns how long the claims stay valid from now.
func (tm *TokenManager) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Sub(tm.now())
}

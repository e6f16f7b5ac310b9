package otp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTOTPRoundTrip(t *testing.T) {
	helper := NewTOTP("CodeWeaver", 1)
	enrollment, err := helper.GenerateSecret("ada@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))
	assert.Contains(t, enrollment.URL, "issuer=CodeWeaver")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := helper.Code(enrollment.Secret, now)
	require.NoError(t, err)

	assert.True(t, helper.Validate(code, enrollment.Secret, now))
	assert.True(t, helper.Validate(code, enrollment.Secret, now.Add(30*time.Second)), "one step of skew")
	assert.False(t, helper.Validate(code, enrollment.Secret, now.Add(5*time.Minute)))
}

func TestTOTPRejectsMalformedCodes(t *testing.T) {
	helper := NewTOTP("CodeWeaver", 1)
	enrollment, err := helper.GenerateSecret("ada@example.com")
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "abcdef", " 123456"} {
		assert.False(t, helper.Validate(code, enrollment.Secret, time.Now()), code)
	}
	assert.False(t, helper.Validate("123456", "", time.Now()))
}

func TestBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)
	for _, code := range codes {
		assert.True(t, IsValidBackupCodeFormat(code), code)
	}

	hashes, err := HashBackupCodes(codes, bcrypt.MinCost)
	require.NoError(t, err)
	require.Len(t, hashes, 8)

	matched, ok := MatchBackupCode(strings.ToUpper(codes[3]), hashes)
	require.True(t, ok)
	assert.Equal(t, hashes[3], matched)

	_, ok = MatchBackupCode("00000000", hashes[:0])
	assert.False(t, ok)
}

func TestCodeFormats(t *testing.T) {
	assert.True(t, IsValidCodeFormat("012345"))
	assert.False(t, IsValidCodeFormat("01234a"))
	assert.True(t, IsValidBackupCodeFormat("deadBEEF"))
	assert.False(t, IsValidBackupCodeFormat("deadbee"))
	assert.False(t, IsValidBackupCodeFormat("zzzzzzzz"))
}

func TestQRCodeDataURL(t *testing.T) {
	url, err := QRCodeDataURL("otpauth://totp/CodeWeaver:ada?secret=JBSWY3DPEHPK3PXP&issuer=CodeWeaver")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

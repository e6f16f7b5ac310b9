package otp

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const backupCodeBytes = 4

var (
	totpCodePattern   = regexp.MustCompile(`^\d{6}$`)
	backupCodePattern = regexp.MustCompile(`^[0-9a-f]{8}$`)
)

// IsValidCodeFormat reports whether code looks like a six digit TOTP code.
func IsValidCodeFormat(code string) bool {
	return totpCodePattern.MatchString(code)
}

// IsValidBackupCodeFormat reports whether code looks like a backup code.
func IsValidBackupCodeFormat(code string) bool {
	return backupCodePattern.MatchString(NormalizeBackupCode(code))
}

// NormalizeBackupCode trims and lower-cases user input.
func NormalizeBackupCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// GenerateBackupCodes returns n random 8 character hex codes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, hex.EncodeToString(buf))
	}
	return codes, nil
}

// HashBackupCodes bcrypt-hashes every code.
func HashBackupCodes(codes []string, cost int) ([]string, error) {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(code), cost)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, string(h))
	}
	return hashes, nil
}

// MatchBackupCode compares code against every hash and returns the matching
// hash. All hashes are compared even after a match.
func MatchBackupCode(code string, hashes []string) (string, bool) {
	code = NormalizeBackupCode(code)
	matched := ""
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil && matched == "" {
			matched = h
		}
	}
	return matched, matched != ""
}

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"

	"github.com/spec-kit/identity-service/internal/domain"
)

const unknown = "Unknown"

// DescribeDevice parses a User-Agent header into a device descriptor.
func DescribeDevice(userAgent, ip string) domain.DeviceInfo {
	info := domain.DeviceInfo{UserAgent: userAgent, IP: ip}
	if info.UserAgent == "" {
		info.UserAgent = unknown
	}
	if info.IP == "" {
		info.IP = unknown
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	info.Browser = strings.TrimSpace(name + " " + version)
	info.OS = strings.TrimSpace(ua.OS())
	if info.Browser == "" {
		info.Browser = unknown
	}
	if info.OS == "" {
		info.OS = unknown
	}
	return info
}

// DeviceFingerprint derives a stable id from browser, OS and address.
func DeviceFingerprint(info domain.DeviceInfo) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{info.Browser, info.OS, info.IP}, "|")))
	return hex.EncodeToString(sum[:])
}

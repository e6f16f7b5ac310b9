package domain

import "time"

// DeviceInfo describes the client a login came from.
type DeviceInfo struct {
	UserAgent string `json:"userAgent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	IP        string `json:"ip"`
}

// LoginDevice records a device fingerprint seen for a user. It is a trust
// signal only and never gates access.
type LoginDevice struct {
	UserID     string     `json:"-"`
	DeviceID   string     `json:"deviceId"`
	Info       DeviceInfo `json:"deviceInfo"`
	IsVerified bool       `json:"isVerified"`
	LastUsed   time.Time  `json:"lastUsed"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// DeviceStaleAfter is how long a device may go unused before a login from
// it is treated as unfamiliar again.
const DeviceStaleAfter = 30 * 24 * time.Hour

package models

import "time"

type DeviceType string

const (
	DeviceWeb           DeviceType = "web"
	DeviceMobileIOS     DeviceType = "mobile-ios"
	DeviceMobileAndroid DeviceType = "mobile-android"
	DeviceOther         DeviceType = "other"
)

func (d DeviceType) IsMobile() bool {
	return d == DeviceMobileIOS || d == DeviceMobileAndroid
}

// ParseDeviceType maps a client-supplied device type to the closed set,
// falling back to DeviceOther for anything unrecognized.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceWeb, DeviceMobileIOS, DeviceMobileAndroid:
		return DeviceType(s)
	default:
		return DeviceOther
	}
}

// Session is one authenticated device/browser instance of a user.
// RefreshTokenHash always holds the hash of the latest issued refresh secret;
// exactly one active session may hold a given hash at any instant.
// PreviousTokenHash keeps the superseded hash discoverable so a stale secret
// presented after rotation is recognized as replay rather than as unknown.
// RotationVersion is the optimistic-concurrency token that serializes rotations.
type Session struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	RefreshTokenHash  string     `json:"-"`
	PreviousTokenHash string     `json:"-"`
	AccessTokenJTI    string     `json:"access_token_jti"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	DeviceName        string     `json:"device_name"`
	DeviceType        DeviceType `json:"device_type"`
	UserAgent         string     `json:"user_agent"`
	IPAddress         string     `json:"ip_address"`
	Location          string     `json:"location,omitempty"`
	IsTrusted         bool       `json:"is_trusted"`
	IsActive          bool       `json:"is_active"`
	RotationVersion   int64      `json:"rotation_version"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	LastModifiedAt    time.Time  `json:"last_modified_at"`
}

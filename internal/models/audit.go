package models

import "time"

type AuditEventType string

const (
	AuditSessionCreated  AuditEventType = "SESSION_CREATED"
	AuditTokenRotated    AuditEventType = "TOKEN_ROTATED"
	AuditSessionRevoked  AuditEventType = "SESSION_REVOKED"
	AuditSuspectedReplay AuditEventType = "SUSPECTED_REPLAY"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
)

// Revocation reason tags attached to SESSION_REVOKED events.
const (
	RevokeReasonLogout          = "logout"
	RevokeReasonReplay          = "replay_response"
	RevokeReasonAdmin           = "admin_action"
	RevokeReasonDeviceUntrusted = "device_untrusted"
	RevokeReasonCapEvicted      = "cap_evicted"
	RevokeReasonExpired         = "expired"
	RevokeReasonStale           = "stale"
)

// AuditEvent is a write-once record of a security-relevant occurrence.
// The engine only ever appends these; retention is an external policy.
type AuditEvent struct {
	ID                string         `json:"id"`
	Type              AuditEventType `json:"type"`
	UserID            string         `json:"user_id"`
	SessionID         string         `json:"session_id"`
	DeviceFingerprint string         `json:"device_fingerprint,omitempty"`
	IPAddress         string         `json:"ip_address,omitempty"`
	UserAgent         string         `json:"user_agent,omitempty"`
	Risk              RiskLevel      `json:"risk"`
	Reason            string         `json:"reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

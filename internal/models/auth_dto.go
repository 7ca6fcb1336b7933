package models

type TokenIssueRequest struct {
	UserID            string `json:"user_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceName        string `json:"device_name"`
	DeviceType        string `json:"device_type"`
	Location          string `json:"location,omitempty"`
	Trusted           bool   `json:"trusted"`
}

type TokenPairResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	SessionID    string   `json:"session_id"`
	ExpiresIn    int64    `json:"expires_in"`
	Session      *Session `json:"session,omitempty"`
}

type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenRevokeRequest struct {
	AccessToken string `json:"access_token"`
}

type RevokeCountResponse struct {
	Revoked int `json:"revoked"`
}

package models

const (
	MwAPIKeyHeader = "X-API-Key"

	MwClientIDKey = "clientID"
)

type APIKey struct {
	Key      string `json:"key"`
	ClientID string `json:"client_id"`
}

package util

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL         = 15 * time.Minute
	defaultRefreshTTL        = 24 * time.Hour
	defaultMobileRefreshTTL  = 7 * 24 * time.Hour
	defaultTrustedRefreshTTL = 30 * 24 * time.Hour

	defaultSessionCap      = 10
	defaultUntrustGrace    = 1 * time.Hour
	defaultStaleAfter      = 30 * 24 * time.Hour
	defaultPurgeRetention  = 30 * 24 * time.Hour
	defaultJanitorInterval = 15 * time.Minute

	RawSecretLength = 32
	JWTLeeWay       = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	JwtSecretKey []byte
	HashKey      []byte
	AccessTTL    time.Duration
}

func NewTokenConfig() *TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	hashKey := os.Getenv("REFRESH_HASH_KEY")
	if hashKey == "" {
		log.Fatal("REFRESH_HASH_KEY is not set")
	}
	return &TokenConfig{
		JwtSecretKey: []byte(secret),
		HashKey:      []byte(hashKey),
		AccessTTL:    parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
	}
}

// SessionConfig carries the session lifecycle policy: expiry windows per
// (deviceType, trusted), the per-user cap and the janitor schedule.
type SessionConfig struct {
	RefreshTTL        time.Duration
	MobileRefreshTTL  time.Duration
	TrustedRefreshTTL time.Duration
	UntrustGrace      time.Duration

	SessionCap int

	StaleAfter      time.Duration
	PurgeRetention  time.Duration
	JanitorInterval time.Duration
}

func NewSessionConfig() *SessionConfig {
	cap := defaultSessionCap
	if capStr := os.Getenv("SESSION_CAP"); capStr != "" {
		if c, err := strconv.Atoi(capStr); err == nil && c > 0 {
			cap = c
		} else {
			log.Printf("Invalid SESSION_CAP: %s, using default %d", capStr, defaultSessionCap)
		}
	}

	return &SessionConfig{
		RefreshTTL:        parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
		MobileRefreshTTL:  parseDurationOrDefault("MOBILE_REFRESH_TOKEN_TTL", defaultMobileRefreshTTL),
		TrustedRefreshTTL: parseDurationOrDefault("TRUSTED_REFRESH_TOKEN_TTL", defaultTrustedRefreshTTL),
		UntrustGrace:      parseDurationOrDefault("UNTRUST_GRACE", defaultUntrustGrace),
		SessionCap:        cap,
		StaleAfter:        parseDurationOrDefault("SESSION_STALE_AFTER", defaultStaleAfter),
		PurgeRetention:    parseDurationOrDefault("SESSION_PURGE_RETENTION", defaultPurgeRetention),
		JanitorInterval:   parseDurationOrDefault("JANITOR_INTERVAL", defaultJanitorInterval),
	}
}

func GetSecurityWebhookURL() string {
	return os.Getenv("SECURITY_WEBHOOK_URL")
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}

package service

import (
	"time"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/util"
)

// ExpiryPolicy is the pure (deviceType, trusted) -> window lookup applied on
// session creation, rotation and trust changes. Trust wins over device type.
type ExpiryPolicy struct {
	base    time.Duration
	mobile  time.Duration
	trusted time.Duration
	grace   time.Duration
}

func NewExpiryPolicy(cfg *util.SessionConfig) *ExpiryPolicy {
	return &ExpiryPolicy{
		base:    cfg.RefreshTTL,
		mobile:  cfg.MobileRefreshTTL,
		trusted: cfg.TrustedRefreshTTL,
		grace:   cfg.UntrustGrace,
	}
}

func (p *ExpiryPolicy) SessionTTL(deviceType models.DeviceType, trusted bool) time.Duration {
	if trusted {
		return p.trusted
	}
	if deviceType.IsMobile() {
		return p.mobile
	}
	return p.base
}

func (p *ExpiryPolicy) ExpiryFrom(now time.Time, deviceType models.DeviceType, trusted bool) time.Time {
	return now.Add(p.SessionTTL(deviceType, trusted))
}

// UntrustGrace is the slack added to lastActivityAt when deciding whether an
// untrusted recompute leaves the session viable at all.
func (p *ExpiryPolicy) UntrustGrace() time.Duration { return p.grace }

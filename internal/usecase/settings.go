package usecase

import (
	"time"

	"edu-access-core/internal/config"
)

// Clock returns the current time.
type Clock func() time.Time

// Settings carries the tunables the use cases read from config.
type Settings struct {
	TrialLength     time.Duration
	TrialPlan       string
	InstructionsURL string
	QuotaLocation   *time.Location
	PendingTTL      time.Duration // 0 disables the stale-pending cleanup
	LoginRateLimit  int
	LoginRateWindow time.Duration
	Clock           Clock
}

// SettingsFromConfig maps the loaded config to use-case settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TrialLength:     cfg.TrialLength(),
		TrialPlan:       cfg.Subscription.TrialPlan,
		InstructionsURL: cfg.Payment.InstructionsURL,
		QuotaLocation:   cfg.QuotaLocation(),
		PendingTTL:      cfg.Scheduler.PendingTTL,
		LoginRateLimit:  cfg.Auth.LoginRateLimit,
		LoginRateWindow: cfg.Auth.LoginRateWindow,
	}
}

func (s Settings) withDefaults() Settings {
	if s.TrialLength <= 0 {
		s.TrialLength = 3 * 24 * time.Hour
	}
	if s.TrialPlan == "" {
		s.TrialPlan = "basic"
	}
	if s.QuotaLocation == nil {
		s.QuotaLocation = time.UTC
	}
	if s.LoginRateWindow <= 0 {
		s.LoginRateWindow = time.Minute
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

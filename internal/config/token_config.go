package config

import "time"

// TokenConfig carries the session-token lifecycle policy. The overlap and
// replay windows are tuning knobs, not fixed protocol constants.
type TokenConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetPersistentTokenExpiry() time.Duration
	GetSessionTokenExpiry() time.Duration
	GetOverlapWindow() time.Duration
	GetReplayWindow() time.Duration
	GetRenewalTokenLength() int
	GetUserTokenCap() int
	GetCleanupInterval() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

// GetPersistentTokenExpiry is the renewal token lifetime for "remember me" logins.
func (Tokens) GetPersistentTokenExpiry() time.Duration {
	return GetEnvDuration("PERSISTENT_TOKEN_EXPIRY", 7*24*time.Hour)
}

// GetSessionTokenExpiry is the renewal token lifetime for transient logins.
func (Tokens) GetSessionTokenExpiry() time.Duration {
	return GetEnvDuration("SESSION_TOKEN_EXPIRY", 12*time.Hour)
}

// GetOverlapWindow is the period after creation during which a renewal token
// may be presented again without triggering a rotation.
func (Tokens) GetOverlapWindow() time.Duration {
	return GetEnvDuration("TOKEN_OVERLAP_WINDOW", 2*time.Minute)
}

// GetReplayWindow is the period after used-marking during which reuse is
// tolerated as a benign client retry rather than treated as theft.
func (Tokens) GetReplayWindow() time.Duration {
	return GetEnvDuration("TOKEN_REPLAY_WINDOW", 5*time.Second)
}

func (Tokens) GetRenewalTokenLength() int {
	return GetEnvInt("RENEWAL_TOKEN_LENGTH", 32) // 32 bytes = 256 bits
}

// GetUserTokenCap bounds how many unexpired renewal tokens one user may
// accumulate before the janitor trims the oldest.
func (Tokens) GetUserTokenCap() int {
	return GetEnvInt("USER_TOKEN_CAP", 10)
}

func (Tokens) GetCleanupInterval() time.Duration {
	return GetEnvDuration("TOKEN_CLEANUP_INTERVAL", 10*time.Minute)
}

package storage

import (
	"github.com/rs/zerolog"
)

const (
	renewalTokenKey      = "renewal_token"
	activeTierKey        = "renewal_token_tier"
	refreshInProgressKey = "refresh_in_progress"

	tierDurable = "durable"
	tierSession = "session"
)

// CredentialStore keeps the renewal token in the tier chosen at login and
// tracks which tier is active so retrieval never has to guess. The
// refresh-in-progress flag lives in the durable tier where every tab can see
// it.
type CredentialStore struct {
	durable Store
	session Store
	logger  zerolog.Logger
}

func NewCredentialStore(durable, session Store, logger zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		durable: durable,
		session: session,
		logger:  logger.With().Str("component", "renewal-storage").Logger(),
	}
}

// SetToken stores the renewal token in the tier selected by rememberMe and
// clears the other tier so stale copies cannot shadow the active one.
func (s *CredentialStore) SetToken(token string, rememberMe bool) error {
	if rememberMe {
		if err := s.session.Delete(renewalTokenKey); err != nil {
			return err
		}
		if err := s.durable.Set(renewalTokenKey, token); err != nil {
			return err
		}
		return s.durable.Set(activeTierKey, tierDurable)
	}

	if err := s.durable.Delete(renewalTokenKey); err != nil {
		return err
	}
	if err := s.session.Set(renewalTokenKey, token); err != nil {
		return err
	}
	return s.durable.Set(activeTierKey, tierSession)
}

// UpdateToken replaces the renewal token under whichever tier is currently
// active, as rotation must never silently change the session's durability.
func (s *CredentialStore) UpdateToken(token string) error {
	durable, err := s.HasDurableToken()
	if err != nil {
		return err
	}
	return s.SetToken(token, durable)
}

// GetToken returns the current renewal token. If both tiers hold one, the
// durable copy wins and the session copy is removed.
func (s *CredentialStore) GetToken() (string, error) {
	sessionToken, err := s.session.Get(renewalTokenKey)
	if err != nil {
		return "", err
	}
	durableToken, err := s.durable.Get(renewalTokenKey)
	if err != nil {
		return "", err
	}

	if sessionToken != "" && durableToken != "" {
		s.logger.Debug().Msg("renewal token present in both tiers, promoting durable copy")
		if err := s.session.Delete(renewalTokenKey); err != nil {
			return "", err
		}
		return durableToken, nil
	}
	if sessionToken != "" {
		return sessionToken, nil
	}
	return durableToken, nil
}

func (s *CredentialStore) HasDurableToken() (bool, error) {
	token, err := s.durable.Get(renewalTokenKey)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// Remove clears both tiers, the tier marker, and the in-progress flag, so any
// inconsistent prior state is recovered.
func (s *CredentialStore) Remove() error {
	var firstErr error
	for _, del := range []func() error{
		func() error { return s.durable.Delete(renewalTokenKey) },
		func() error { return s.session.Delete(renewalTokenKey) },
		func() error { return s.durable.Delete(activeTierKey) },
		func() error { return s.durable.Delete(refreshInProgressKey) },
	} {
		if err := del(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RefreshInProgress reports the cross-tab single-flight flag. Absence or a
// read failure counts as "not in progress" so a crashed tab cannot wedge
// refreshes forever.
func (s *CredentialStore) RefreshInProgress() bool {
	value, err := s.durable.Get(refreshInProgressKey)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read refresh flag, assuming not in progress")
		return false
	}
	return value == "1"
}

func (s *CredentialStore) SetRefreshInProgress(inProgress bool) error {
	if inProgress {
		return s.durable.Set(refreshInProgressKey, "1")
	}
	return s.durable.Delete(refreshInProgressKey)
}

package renewal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/internal/config"
)

// Service issues, rotates, revokes, and garbage-collects renewal tokens. Every
// validation failure is reported through RotationResult rather than an error;
// errors surface only for storage faults.
type Service struct {
	store   Store
	config  config.TokenConfig
	logger  zerolog.Logger
	nowTime func() time.Time
}

// RotationResult is the outcome of a ValidateAndRotate call. When the
// presented token is still inside its overlap window, NewValue is the same
// value that was presented.
type RotationResult struct {
	Valid        bool
	NewValue     string
	UserID       string
	IsPersistent bool
}

// ServiceOption modifies a Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService creates a renewal token service backed by the given store.
func NewService(store Store, cfg config.TokenConfig, logger zerolog.Logger, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewService] config is required")
	}

	service := &Service{
		store:   store,
		config:  cfg,
		logger:  logger.With().Str("component", "renewal").Logger(),
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// Issue creates a new renewal token for the user and returns the bearer value.
// Existing tokens for the same user are left untouched: multiple valid tokens
// per user support overlapping sessions across tabs.
func (s *Service) Issue(ctx context.Context, userID string, isPersistent bool) (string, error) {
	now := s.nowTime().UTC()

	token, err := s.newToken(userID, isPersistent, now)
	if err != nil {
		return "", err
	}
	if err := s.store.Create(ctx, token); err != nil {
		return "", errors.Wrap(err, "[Issue] failed to store renewal token")
	}

	s.logger.Debug().Str("userId", userID).Bool("persistent", isPersistent).Msg("issued renewal token")
	return token.Value, nil
}

// ValidateAndRotate exchanges a renewal token for its successor.
//
// A token presented after its replay window has closed is treated as stolen:
// every token belonging to the owner is revoked and the call reports invalid.
// A token still inside its overlap window is handed back unrotated so that
// near-simultaneous callers holding the same value do not invalidate each
// other. Otherwise the token is marked used and a new one is minted inheriting
// the owner and persistence tier.
func (s *Service) ValidateAndRotate(ctx context.Context, value string) (RotationResult, error) {
	now := s.nowTime().UTC()
	replayWindow := s.config.GetReplayWindow()

	existing, err := s.store.FindByValue(ctx, value)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RotationResult{}, errors.Wrap(err, "[ValidateAndRotate] lookup failed")
	}

	if existing != nil && existing.UsedBefore(now.Add(-replayWindow)) {
		return s.handleReplay(ctx, existing)
	}

	token, err := s.store.FindValidByValue(ctx, value, now, replayWindow)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info().Msg("renewal token not found, expired, or already consumed")
			return RotationResult{}, nil
		}
		return RotationResult{}, errors.Wrap(err, "[ValidateAndRotate] valid lookup failed")
	}

	if now.Sub(token.CreatedAt) < s.config.GetOverlapWindow() {
		// A fresh token stays valid for concurrent in-flight callers.
		s.logger.Debug().Str("userId", token.UserID).Msg("renewal token inside overlap window, reusing value")
		return RotationResult{
			Valid:        true,
			NewValue:     token.Value,
			UserID:       token.UserID,
			IsPersistent: token.IsPersistent,
		}, nil
	}

	if err := s.store.MarkUsed(ctx, token.Value, now); err != nil {
		return RotationResult{}, errors.Wrap(err, "[ValidateAndRotate] failed to mark token used")
	}

	successor, err := s.newToken(token.UserID, token.IsPersistent, now)
	if err != nil {
		return RotationResult{}, err
	}
	if err := s.store.Create(ctx, successor); err != nil {
		return RotationResult{}, errors.Wrap(err, "[ValidateAndRotate] failed to store rotated token")
	}

	s.logger.Debug().Str("userId", token.UserID).Msg("renewal token rotated")
	return RotationResult{
		Valid:        true,
		NewValue:     successor.Value,
		UserID:       successor.UserID,
		IsPersistent: successor.IsPersistent,
	}, nil
}

// UserIDForToken resolves the owner of an unexpired renewal token without
// mutating any state. Returns ErrNotFound for unknown or expired values.
func (s *Service) UserIDForToken(ctx context.Context, value string) (string, error) {
	token, err := s.store.FindByValue(ctx, value)
	if err != nil {
		return "", err
	}
	if token.Expired(s.nowTime().UTC()) {
		return "", ErrNotFound
	}
	return token.UserID, nil
}

// Revoke deletes exactly the one matching record. Idempotent if absent.
func (s *Service) Revoke(ctx context.Context, value string) error {
	return s.store.Delete(ctx, value)
}

func (s *Service) handleReplay(ctx context.Context, token *Token) (RotationResult, error) {
	removed, err := s.store.DeleteAllForUser(ctx, token.UserID)
	if err != nil {
		return RotationResult{}, errors.Wrap(err, "[ValidateAndRotate] failed to revoke tokens after replay")
	}

	s.logger.Warn().
		Str("event", "token_replay").
		Str("userId", token.UserID).
		Int("revoked", removed).
		Msg("renewal token reused beyond replay window, revoked all tokens for user")

	return RotationResult{}, nil
}

func (s *Service) newToken(userID string, isPersistent bool, now time.Time) (*Token, error) {
	valueBytes := make([]byte, s.config.GetRenewalTokenLength())
	if _, err := rand.Read(valueBytes); err != nil {
		return nil, errors.Wrap(err, "[newToken] failed to generate random bytes")
	}

	expiry := s.config.GetSessionTokenExpiry()
	if isPersistent {
		expiry = s.config.GetPersistentTokenExpiry()
	}

	return &Token{
		ID:           uuid.New().String(),
		Value:        hex.EncodeToString(valueBytes),
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(expiry),
		IsPersistent: isPersistent,
	}, nil
}

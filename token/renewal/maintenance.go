package renewal

import (
	"context"

	"github.com/pkg/errors"
)

// Maintenance is the garbage-collection capability of the token service,
// exposed separately so schedulers depend on it rather than on the concrete
// service type.
type Maintenance interface {
	// RunCleanup removes tokens that can never validate again: expired ones,
	// and used ones older than the overlap window. Returns how many were
	// removed.
	RunCleanup(ctx context.Context) (int, error)

	// EnforceUserCap trims each user's tokens to the configured cap, keeping
	// the most recently created. Returns how many were removed.
	EnforceUserCap(ctx context.Context) (int, error)
}

var _ Maintenance = (*Service)(nil)

func (s *Service) RunCleanup(ctx context.Context) (int, error) {
	now := s.nowTime().UTC()
	usedCutoff := now.Add(-s.config.GetOverlapWindow())

	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "[RunCleanup] failed to list users")
	}

	var stale []string
	for _, userID := range userIDs {
		tokens, err := s.store.ListByUser(ctx, userID)
		if err != nil {
			return 0, errors.Wrap(err, "[RunCleanup] failed to list tokens")
		}
		for _, token := range tokens {
			if token.Expired(now) || token.UsedBefore(usedCutoff) {
				stale = append(stale, token.Value)
			}
		}
	}

	removed, err := s.store.DeleteBatch(ctx, stale)
	if err != nil {
		return 0, errors.Wrap(err, "[RunCleanup] failed to delete tokens")
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("cleanup removed expired and consumed tokens")
	}
	return removed, nil
}

func (s *Service) EnforceUserCap(ctx context.Context) (int, error) {
	keep := s.config.GetUserTokenCap()

	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "[EnforceUserCap] failed to list users")
	}

	total := 0
	for _, userID := range userIDs {
		excess, err := s.store.ListExcess(ctx, userID, keep)
		if err != nil {
			return total, errors.Wrap(err, "[EnforceUserCap] failed to list excess tokens")
		}
		if len(excess) == 0 {
			continue
		}

		values := make([]string, 0, len(excess))
		for _, token := range excess {
			values = append(values, token.Value)
		}
		removed, err := s.store.DeleteBatch(ctx, values)
		if err != nil {
			return total, errors.Wrap(err, "[EnforceUserCap] failed to delete excess tokens")
		}
		total += removed
		s.logger.Info().Str("userId", userID).Int("removed", removed).Msg("trimmed excess renewal tokens")
	}
	return total, nil
}

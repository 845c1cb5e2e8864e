package storefake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventrian/go-session-service/token/renewal"
)

var _ renewal.Store = (*FakeRenewalStore)(nil)

// FakeRenewalStore is an in-memory renewal.Store for tests and single-node
// development runs.
type FakeRenewalStore struct {
	lock   sync.RWMutex
	tokens map[string]*renewal.Token // keyed by bearer value
}

func NewFakeRenewalStore() *FakeRenewalStore {
	return &FakeRenewalStore{
		tokens: make(map[string]*renewal.Token),
	}
}

func (s *FakeRenewalStore) Create(_ context.Context, token *renewal.Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tokens[token.Value] = token.Clone()
	return nil
}

func (s *FakeRenewalStore) FindByValue(_ context.Context, value string) (*renewal.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	token, ok := s.tokens[value]
	if !ok {
		return nil, renewal.ErrNotFound
	}
	return token.Clone(), nil
}

func (s *FakeRenewalStore) FindValidByValue(_ context.Context, value string, now time.Time, replayWindow time.Duration) (*renewal.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	token, ok := s.tokens[value]
	if !ok || token.Expired(now) || token.UsedBefore(now.Add(-replayWindow)) {
		return nil, renewal.ErrNotFound
	}
	return token.Clone(), nil
}

func (s *FakeRenewalStore) MarkUsed(_ context.Context, value string, usedAt time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return renewal.ErrNotFound
	}
	usedAtCopy := usedAt
	token.UsedAt = &usedAtCopy
	return nil
}

func (s *FakeRenewalStore) ListByUser(_ context.Context, userID string) ([]*renewal.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.userTokensNewestFirst(userID), nil
}

func (s *FakeRenewalStore) ListExcess(_ context.Context, userID string, keep int) ([]*renewal.Token, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tokens := s.userTokensNewestFirst(userID)
	if len(tokens) <= keep {
		return nil, nil
	}
	return tokens[keep:], nil
}

func (s *FakeRenewalStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	seen := make(map[string]struct{})
	userIDs := make([]string, 0)
	for _, token := range s.tokens {
		if _, ok := seen[token.UserID]; ok {
			continue
		}
		seen[token.UserID] = struct{}{}
		userIDs = append(userIDs, token.UserID)
	}
	return userIDs, nil
}

func (s *FakeRenewalStore) Delete(_ context.Context, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.tokens, value)
	return nil
}

func (s *FakeRenewalStore) DeleteBatch(_ context.Context, values []string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	removed := 0
	for _, value := range values {
		if _, ok := s.tokens[value]; ok {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed, nil
}

func (s *FakeRenewalStore) DeleteAllForUser(_ context.Context, userID string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	removed := 0
	for value, token := range s.tokens {
		if token.UserID == userID {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed, nil
}

func (s *FakeRenewalStore) userTokensNewestFirst(userID string) []*renewal.Token {
	tokens := make([]*renewal.Token, 0)
	for _, token := range s.tokens {
		if token.UserID == userID {
			tokens = append(tokens, token.Clone())
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens
}

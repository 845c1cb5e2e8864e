// Package redisstore persists renewal tokens in Redis. Each token lives in a
// hash keyed by its bearer value, with a per-user set indexing ownership and a
// master set of owners for maintenance sweeps. Validity policy stays with the
// caller; no key carries a TTL.
package redisstore

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/eventrian/go-session-service/token/renewal"
)

const (
	tokenKeyPrefix = "renewal:token:"
	userKeyPrefix  = "renewal:user:"
	usersKey       = "renewal:users"
)

var _ renewal.Store = (*RedisStore)(nil)

type RedisStore struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, token *renewal.Token) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, tokenKeyPrefix+token.Value, tokenFields(token))
	pipe.SAdd(ctx, userKeyPrefix+token.UserID, token.Value)
	pipe.SAdd(ctx, usersKey, token.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[Create] redis pipeline failed")
	}
	return nil
}

func (s *RedisStore) FindByValue(ctx context.Context, value string) (*renewal.Token, error) {
	fields, err := s.client.HGetAll(ctx, tokenKeyPrefix+value).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[FindByValue] redis lookup failed")
	}
	if len(fields) == 0 {
		return nil, renewal.ErrNotFound
	}
	return tokenFromFields(value, fields)
}

func (s *RedisStore) FindValidByValue(ctx context.Context, value string, now time.Time, replayWindow time.Duration) (*renewal.Token, error) {
	token, err := s.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if token.Expired(now) || token.UsedBefore(now.Add(-replayWindow)) {
		return nil, renewal.ErrNotFound
	}
	return token, nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, value string, usedAt time.Time) error {
	exists, err := s.client.Exists(ctx, tokenKeyPrefix+value).Result()
	if err != nil {
		return errors.Wrap(err, "[MarkUsed] redis lookup failed")
	}
	if exists == 0 {
		return renewal.ErrNotFound
	}
	if err := s.client.HSet(ctx, tokenKeyPrefix+value, "used_at", usedAt.UnixNano()).Err(); err != nil {
		return errors.Wrap(err, "[MarkUsed] redis write failed")
	}
	return nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*renewal.Token, error) {
	values, err := s.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[ListByUser] redis lookup failed")
	}

	tokens := make([]*renewal.Token, 0, len(values))
	for _, value := range values {
		token, err := s.FindByValue(ctx, value)
		if err != nil {
			if errors.Is(err, renewal.ErrNotFound) {
				// Index entry survived a crashed delete; drop it.
				s.client.SRem(ctx, userKeyPrefix+userID, value)
				continue
			}
			return nil, err
		}
		tokens = append(tokens, token)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (s *RedisStore) ListExcess(ctx context.Context, userID string, keep int) ([]*renewal.Token, error) {
	tokens, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tokens) <= keep {
		return nil, nil
	}
	return tokens[keep:], nil
}

func (s *RedisStore) ListUserIDs(ctx context.Context) ([]string, error) {
	userIDs, err := s.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[ListUserIDs] redis lookup failed")
	}
	return userIDs, nil
}

func (s *RedisStore) Delete(ctx context.Context, value string) error {
	token, err := s.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, renewal.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+value)
	pipe.SRem(ctx, userKeyPrefix+token.UserID, value)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "[Delete] redis pipeline failed")
	}
	return nil
}

func (s *RedisStore) DeleteBatch(ctx context.Context, values []string) (int, error) {
	removed := 0
	for _, value := range values {
		if _, err := s.FindByValue(ctx, value); err != nil {
			if errors.Is(err, renewal.ErrNotFound) {
				continue
			}
			return removed, err
		}
		if err := s.Delete(ctx, value); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	values, err := s.client.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return 0, errors.Wrap(err, "[DeleteAllForUser] redis lookup failed")
	}

	pipe := s.client.TxPipeline()
	for _, value := range values {
		pipe.Del(ctx, tokenKeyPrefix+value)
	}
	pipe.Del(ctx, userKeyPrefix+userID)
	pipe.SRem(ctx, usersKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "[DeleteAllForUser] redis pipeline failed")
	}
	return len(values), nil
}

func tokenFields(token *renewal.Token) map[string]interface{} {
	fields := map[string]interface{}{
		"id":         token.ID,
		"user_id":    token.UserID,
		"created_at": token.CreatedAt.UnixNano(),
		"expires_at": token.ExpiresAt.UnixNano(),
		"persistent": strconv.FormatBool(token.IsPersistent),
	}
	if token.UsedAt != nil {
		fields["used_at"] = token.UsedAt.UnixNano()
	}
	return fields
}

func tokenFromFields(value string, fields map[string]string) (*renewal.Token, error) {
	createdAt, err := nanoTime(fields["created_at"])
	if err != nil {
		return nil, errors.Wrap(err, "[tokenFromFields] bad created_at")
	}
	expiresAt, err := nanoTime(fields["expires_at"])
	if err != nil {
		return nil, errors.Wrap(err, "[tokenFromFields] bad expires_at")
	}

	token := &renewal.Token{
		ID:           fields["id"],
		Value:        value,
		UserID:       fields["user_id"],
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		IsPersistent: fields["persistent"] == "true",
	}

	if raw, ok := fields["used_at"]; ok {
		usedAt, err := nanoTime(raw)
		if err != nil {
			return nil, errors.Wrap(err, "[tokenFromFields] bad used_at")
		}
		token.UsedAt = &usedAt
	}
	return token, nil
}

func nanoTime(raw string) (time.Time, error) {
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

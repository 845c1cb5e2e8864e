package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/require"

	"github.com/eventrian/go-session-service/token/renewal"
	"github.com/eventrian/go-session-service/token/renewal/redisstore"
)

func setupStore(t *testing.T) *redisstore.RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client)
}

func newToken(id, value, userID string, createdAt time.Time, persistent bool) *renewal.Token {
	return &renewal.Token{
		ID:           id,
		Value:        value,
		UserID:       userID,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(12 * time.Hour),
		IsPersistent: persistent,
	}
}

func TestCreateAndFindByValue(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", createdAt, true)))

	token, err := store.FindByValue(ctx, "value-1")
	require.NoError(t, err)
	require.Equal(t, "id-1", token.ID)
	require.Equal(t, "value-1", token.Value)
	require.Equal(t, "user-1", token.UserID)
	require.Equal(t, createdAt, token.CreatedAt)
	require.Equal(t, createdAt.Add(12*time.Hour), token.ExpiresAt)
	require.True(t, token.IsPersistent)
	require.Nil(t, token.UsedAt)
}

func TestFindByValueUnknown(t *testing.T) {
	store := setupStore(t)

	_, err := store.FindByValue(context.Background(), "missing")
	require.ErrorIs(t, err, renewal.ErrNotFound)
}

func TestFindValidByValue(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", createdAt, false)))

	// Unused and unexpired.
	token, err := store.FindValidByValue(ctx, "value-1", createdAt.Add(time.Hour), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "id-1", token.ID)

	// Expired.
	_, err = store.FindValidByValue(ctx, "value-1", createdAt.Add(13*time.Hour), 5*time.Second)
	require.ErrorIs(t, err, renewal.ErrNotFound)

	// Used two seconds ago: still valid within the five second grace.
	usedAt := createdAt.Add(time.Hour)
	require.NoError(t, store.MarkUsed(ctx, "value-1", usedAt))
	token, err = store.FindValidByValue(ctx, "value-1", usedAt.Add(2*time.Second), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, token.UsedAt)
	require.Equal(t, usedAt, *token.UsedAt)

	// Used ten seconds ago: outside the grace.
	_, err = store.FindValidByValue(ctx, "value-1", usedAt.Add(10*time.Second), 5*time.Second)
	require.ErrorIs(t, err, renewal.ErrNotFound)
}

func TestMarkUsedUnknown(t *testing.T) {
	store := setupStore(t)

	err := store.MarkUsed(context.Background(), "missing", time.Now())
	require.ErrorIs(t, err, renewal.ErrNotFound)
}

func TestListByUserNewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", base, false)))
	require.NoError(t, store.Create(ctx, newToken("id-2", "value-2", "user-1", base.Add(time.Minute), false)))
	require.NoError(t, store.Create(ctx, newToken("id-3", "value-3", "user-2", base, false)))

	tokens, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, "id-2", tokens[0].ID)
	require.Equal(t, "id-1", tokens[1].ID)
}

func TestListExcess(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		token := newToken(
			"id-"+string(rune('a'+i)),
			"value-"+string(rune('a'+i)),
			"user-1",
			base.Add(time.Duration(i)*time.Minute),
			false,
		)
		require.NoError(t, store.Create(ctx, token))
	}

	excess, err := store.ListExcess(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, excess, 2)
	// The overflow is the oldest two.
	require.Equal(t, "id-b", excess[0].ID)
	require.Equal(t, "id-a", excess[1].ID)

	none, err := store.ListExcess(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestListUserIDs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", base, false)))
	require.NoError(t, store.Create(ctx, newToken("id-2", "value-2", "user-2", base, false)))

	userIDs, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"user-1", "user-2"}, userIDs)
}

func TestDeleteRemovesTokenAndIndex(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", base, false)))
	require.NoError(t, store.Delete(ctx, "value-1"))

	_, err := store.FindByValue(ctx, "value-1")
	require.ErrorIs(t, err, renewal.ErrNotFound)

	tokens, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, tokens)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(ctx, "value-1"))
}

func TestDeleteBatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", base, false)))
	require.NoError(t, store.Create(ctx, newToken("id-2", "value-2", "user-1", base, false)))

	removed, err := store.DeleteBatch(ctx, []string{"value-1", "value-2", "missing"})
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}

func TestDeleteAllForUser(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newToken("id-1", "value-1", "user-1", base, false)))
	require.NoError(t, store.Create(ctx, newToken("id-2", "value-2", "user-1", base, true)))
	require.NoError(t, store.Create(ctx, newToken("id-3", "value-3", "user-2", base, false)))

	removed, err := store.DeleteAllForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	tokens, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, tokens)

	userIDs, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"user-2"}, userIDs)

	// Unaffected user keeps its token.
	_, err = store.FindByValue(ctx, "value-3")
	require.NoError(t, err)
}

package credentials_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eventrian/go-session-service/client/credentials"
)

func TestCacheStartsBlocked(t *testing.T) {
	cache := credentials.NewCache(zerolog.Nop())

	require.True(t, cache.UpdatesBlocked())
	cache.Set("token-1")
	require.Empty(t, cache.Get())
}

func TestCacheSetAfterAllow(t *testing.T) {
	cache := credentials.NewCache(zerolog.Nop())

	cache.AllowUpdates()
	require.False(t, cache.UpdatesBlocked())
	cache.Set("token-1")
	require.Equal(t, "token-1", cache.Get())
}

func TestCacheDropsEmptyToken(t *testing.T) {
	cache := credentials.NewCache(zerolog.Nop())

	cache.AllowUpdates()
	cache.Set("token-1")
	cache.Set("")
	require.Equal(t, "token-1", cache.Get())
}

func TestCacheBlockStopsLateWrites(t *testing.T) {
	cache := credentials.NewCache(zerolog.Nop())

	cache.AllowUpdates()
	cache.Set("token-1")

	// Logout blocks the gate and clears; a late refresh response must not
	// resurrect the credential.
	cache.BlockUpdates()
	cache.Clear()
	cache.Set("token-2")
	require.Empty(t, cache.Get())
}

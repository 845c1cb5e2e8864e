package refresher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eventrian/go-session-service/client/credentials"
	"github.com/eventrian/go-session-service/client/refresher"
	"github.com/eventrian/go-session-service/client/storage"
	"github.com/eventrian/go-session-service/token/access"
)

type refreshServer struct {
	server *httptest.Server
	calls  atomic.Int64
	signer *access.HMACSigner

	mu     sync.Mutex
	reject bool
}

// newRefreshServer stands in for the session service: every refresh call
// rotates to a fresh pair of tokens unless told to reject.
func newRefreshServer(t *testing.T) *refreshServer {
	t.Helper()

	signer, err := access.NewHMACSigner([]byte("test-secret"), "eventrian", "eventrian-api", 15*time.Minute)
	require.NoError(t, err)

	rs := &refreshServer{signer: signer}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)

		rs.mu.Lock()
		reject := rs.reject
		rs.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		accessToken, err := signer.Sign(access.Claims{UserID: "user-1", Email: "alice@example.com"})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":      true,
			"accessToken":  accessToken,
			"refreshToken": "rotated-renewal-token",
		})
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *refreshServer) setReject(reject bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.reject = reject
}

type testFixture struct {
	backend  *refreshServer
	cache    *credentials.Cache
	renewals *storage.CredentialStore
	durable  *storage.MemStore
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	fixture := &testFixture{
		backend: newRefreshServer(t),
		cache:   credentials.NewCache(zerolog.Nop()),
		durable: storage.NewMemStore(),
	}
	fixture.renewals = storage.NewCredentialStore(fixture.durable, storage.NewMemStore(), zerolog.Nop())
	fixture.cache.AllowUpdates()
	require.NoError(t, fixture.renewals.SetToken("initial-renewal-token", true))
	return fixture
}

func (f *testFixture) newRefresher(cfg refresher.Config) *refresher.Refresher {
	return refresher.New(f.backend.server.Client(), f.backend.server.URL, cfg, f.cache, f.renewals, nil, zerolog.Nop())
}

func TestTryRefreshRotatesCredentials(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{})

	require.True(t, r.TryRefresh(context.Background()))
	require.EqualValues(t, 1, fixture.backend.calls.Load())

	require.NotEmpty(t, fixture.cache.Get())
	token, err := fixture.renewals.GetToken()
	require.NoError(t, err)
	require.Equal(t, "rotated-renewal-token", token)

	// Rotation must not change durability.
	durable, err := fixture.renewals.HasDurableToken()
	require.NoError(t, err)
	require.True(t, durable)

	require.False(t, fixture.renewals.RefreshInProgress())
}

func TestTryRefreshWithoutRenewalToken(t *testing.T) {
	fixture := setupTestFixture(t)
	require.NoError(t, fixture.renewals.Remove())
	r := fixture.newRefresher(refresher.Config{})

	require.False(t, r.TryRefresh(context.Background()))
	require.Zero(t, fixture.backend.calls.Load())
	require.False(t, fixture.renewals.RefreshInProgress())
}

func TestTryRefreshServerRejection(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.backend.setReject(true)
	r := fixture.newRefresher(refresher.Config{})

	require.False(t, r.TryRefresh(context.Background()))
	require.EqualValues(t, 1, fixture.backend.calls.Load())

	// The stored renewal token is untouched for a later retry.
	token, err := fixture.renewals.GetToken()
	require.NoError(t, err)
	require.Equal(t, "initial-renewal-token", token)
	require.False(t, fixture.renewals.RefreshInProgress())
}

func TestTryRefreshDebouncesBackToBackCalls(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{Debounce: time.Minute})

	require.True(t, r.TryRefresh(context.Background()))
	require.True(t, r.TryRefresh(context.Background()))
	require.EqualValues(t, 1, fixture.backend.calls.Load())
}

func TestTryRefreshSingleFlightWithinTab(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{Debounce: time.Minute})

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.TryRefresh(context.Background())
		}(i)
	}
	wg.Wait()

	// Every caller reports success, only one hit the network.
	for _, ok := range results {
		require.True(t, ok)
	}
	require.EqualValues(t, 1, fixture.backend.calls.Load())
}

func TestTryRefreshGivesUpWhenAnotherTabHoldsTheFlag(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{
		WaitTimeout: 50 * time.Millisecond,
		WaitStep:    10 * time.Millisecond,
	})

	// Another tab sharing durable storage is mid-refresh.
	otherTab := storage.NewCredentialStore(fixture.durable, storage.NewMemStore(), zerolog.Nop())
	require.NoError(t, otherTab.SetRefreshInProgress(true))

	require.False(t, r.TryRefresh(context.Background()))
	require.Zero(t, fixture.backend.calls.Load())

	// Once the other tab finishes, refreshing works again.
	require.NoError(t, otherTab.SetRefreshInProgress(false))
	require.True(t, r.TryRefresh(context.Background()))
	require.EqualValues(t, 1, fixture.backend.calls.Load())
}

// Two tabs share the durable tier through one file. While the first tab's
// refresh is in flight the second sees the flag and backs off without its own
// network call.
func TestTryRefreshSingleFlightAcrossTabs(t *testing.T) {
	signer, err := access.NewHMACSigner([]byte("test-secret"), "eventrian", "eventrian-api", 15*time.Minute)
	require.NoError(t, err)

	var calls atomic.Int64
	var startedOnce sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		startedOnce.Do(func() { close(started) })
		<-release

		accessToken, err := signer.Sign(access.Claims{UserID: "user-1"})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":      true,
			"accessToken":  accessToken,
			"refreshToken": "rotated-renewal-token",
		})
	}))
	defer backend.Close()

	durable, err := storage.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	newTab := func(cfg refresher.Config) (*refresher.Refresher, *storage.CredentialStore) {
		cache := credentials.NewCache(zerolog.Nop())
		cache.AllowUpdates()
		renewals := storage.NewCredentialStore(durable, storage.NewMemStore(), zerolog.Nop())
		return refresher.New(backend.Client(), backend.URL, cfg, cache, renewals, nil, zerolog.Nop()), renewals
	}

	first, firstStore := newTab(refresher.Config{})
	require.NoError(t, firstStore.SetToken("initial-renewal-token", true))
	second, _ := newTab(refresher.Config{
		WaitTimeout: 30 * time.Millisecond,
		WaitStep:    10 * time.Millisecond,
	})

	firstResult := make(chan bool, 1)
	go func() { firstResult <- first.TryRefresh(context.Background()) }()
	<-started

	// The first tab holds the flag; the second gives up without calling out.
	require.False(t, second.TryRefresh(context.Background()))
	require.EqualValues(t, 1, calls.Load())

	close(release)
	require.True(t, <-firstResult)

	token, err := firstStore.GetToken()
	require.NoError(t, err)
	require.Equal(t, "rotated-renewal-token", token)

	// With the flag released the second tab can refresh normally.
	require.True(t, second.TryRefresh(context.Background()))
	require.EqualValues(t, 2, calls.Load())
}

func TestTryRefreshHonorsContextCancellation(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{
		WaitTimeout: time.Second,
		WaitStep:    10 * time.Millisecond,
	})
	require.NoError(t, fixture.renewals.SetRefreshInProgress(true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, r.TryRefresh(ctx))
	require.Zero(t, fixture.backend.calls.Load())
}

func TestCheckAndRefreshSkipsWithoutAccessToken(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{})

	r.CheckAndRefresh(context.Background())
	require.Zero(t, fixture.backend.calls.Load())
}

func TestCheckAndRefreshSkipsFreshToken(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{ExpirySlack: 5 * time.Minute})

	fresh, err := fixture.backend.signer.Sign(access.Claims{
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	fixture.cache.Set(fresh)

	r.CheckAndRefresh(context.Background())
	require.Zero(t, fixture.backend.calls.Load())
}

func TestCheckAndRefreshRefreshesExpiringToken(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{ExpirySlack: 5 * time.Minute})

	expiring, err := fixture.backend.signer.Sign(access.Claims{
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	fixture.cache.Set(expiring)

	r.CheckAndRefresh(context.Background())
	require.EqualValues(t, 1, fixture.backend.calls.Load())
	require.NotEqual(t, expiring, fixture.cache.Get())
}

func TestCheckAndRefreshRefreshesUnreadableToken(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{})
	fixture.cache.Set("not-a-jwt")

	r.CheckAndRefresh(context.Background())
	require.EqualValues(t, 1, fixture.backend.calls.Load())
}

func TestStartRefreshesOnTimer(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{
		Interval:    10 * time.Millisecond,
		ExpirySlack: 5 * time.Minute,
	})

	expiring, err := fixture.backend.signer.Sign(access.Claims{
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	fixture.cache.Set(expiring)

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return fixture.backend.calls.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStopHaltsTimer(t *testing.T) {
	fixture := setupTestFixture(t)
	r := fixture.newRefresher(refresher.Config{Interval: 5 * time.Millisecond})

	r.Start()
	r.Stop()
	r.Stop() // safe when already stopped

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, fixture.backend.calls.Load())
}

// Package refresher decides when the client rotates its credentials:
// proactively on a timer, reactively when a caller asks, and defensively
// against duplicate concurrent refreshes across tabs.
package refresher

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/client/broadcast"
	"github.com/eventrian/go-session-service/client/credentials"
	"github.com/eventrian/go-session-service/client/storage"
	"github.com/eventrian/go-session-service/token/access"
)

const refreshPath = "/auth/refresh"

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// Config tunes the refresh cadence. Zero values fall back to defaults.
type Config struct {
	// Interval between proactive expiry checks.
	Interval time.Duration
	// ExpirySlack triggers a refresh when the credential expires this soon.
	ExpirySlack time.Duration
	// Debounce collapses refresh triggers arriving nearly simultaneously.
	Debounce time.Duration
	// WaitTimeout bounds how long to wait for another tab's refresh.
	WaitTimeout time.Duration
	// WaitStep is the polling step while waiting.
	WaitStep time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.ExpirySlack <= 0 {
		c.ExpirySlack = 5 * time.Minute
	}
	if c.Debounce <= 0 {
		c.Debounce = time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = time.Second
	}
	if c.WaitStep <= 0 {
		c.WaitStep = 100 * time.Millisecond
	}
}

// Refresher owns the periodic refresh timer and the single-flight protocol.
// The storage-backed flag coordinates tabs that share durable storage but not
// memory; the in-process mutex coordinates concurrent callers within one tab.
type Refresher struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	access     *credentials.Cache
	renewals   *storage.CredentialStore
	sync       *broadcast.Broadcaster
	logger     zerolog.Logger

	refreshLock sync.Mutex
	lastRefresh time.Time

	timerMu sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

func New(httpClient *http.Client, baseURL string, cfg Config, cache *credentials.Cache, renewals *storage.CredentialStore, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Refresher {
	cfg.applyDefaults()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Refresher{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     cfg,
		access:     cache,
		renewals:   renewals,
		sync:       broadcaster,
		logger:     logger.With().Str("component", "refresher").Logger(),
	}
}

// Start launches the proactive refresh timer, replacing any previous one.
func (r *Refresher) Start() {
	r.Stop()

	r.timerMu.Lock()
	defer r.timerMu.Unlock()

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
}

// Stop halts the timer. Safe to call when not running.
func (r *Refresher) Stop() {
	r.timerMu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.timerMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Refresher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick guards the timer loop: a panicking check must never kill the schedule.
func (r *Refresher) tick() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("recovered from refresh timer panic")
		}
	}()
	r.CheckAndRefresh(context.Background())
}

// CheckAndRefresh refreshes when the cached credential is unreadable or
// expires within the configured slack. The expiry read is only a hint to skip
// needless network calls; the server remains the authority.
func (r *Refresher) CheckAndRefresh(ctx context.Context) {
	token := r.access.Get()
	if token == "" {
		return
	}

	if _, err := access.ExpiryOf(token); err != nil {
		r.logger.Debug().Err(err).Msg("access token unreadable, refreshing")
		r.TryRefresh(ctx)
		return
	}

	if access.ExpiresWithin(token, r.config.ExpirySlack) {
		r.logger.Debug().Msg("access token expiring soon, refreshing")
		r.TryRefresh(ctx)
	}
}

// TryRefresh runs one cooperative refresh attempt and reports success. A
// false return means "try again later or terminate", never a verdict on the
// session itself; that decision belongs to the caller.
func (r *Refresher) TryRefresh(ctx context.Context) bool {
	if !r.waitForOtherRefresh(ctx) {
		r.logger.Info().Msg("waited too long for another tab's refresh, giving up")
		return false
	}

	if err := r.renewals.SetRefreshInProgress(true); err != nil {
		r.logger.Error().Err(err).Msg("failed to set refresh flag")
		return false
	}
	r.refreshLock.Lock()
	defer func() {
		if err := r.renewals.SetRefreshInProgress(false); err != nil {
			r.logger.Error().Err(err).Msg("failed to clear refresh flag")
		}
		r.refreshLock.Unlock()
	}()

	now := time.Now()
	if now.Sub(r.lastRefresh) < r.config.Debounce {
		// Another caller in this tab just finished; its result stands.
		r.logger.Debug().Msg("skipping redundant refresh")
		return true
	}

	refreshToken, err := r.renewals.GetToken()
	if err != nil || refreshToken == "" {
		return false
	}

	result, ok := r.callRefresh(ctx, refreshToken)
	if !ok {
		return false
	}

	r.lastRefresh = now

	r.access.Set(result.AccessToken)
	if err := r.renewals.UpdateToken(result.RefreshToken); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist rotated renewal token")
		return false
	}

	if userID, err := access.UserIDOf(result.AccessToken); err == nil && r.sync != nil {
		r.sync.Register(userID)
	}
	return true
}

// waitForOtherRefresh polls the cross-tab flag in bounded steps. The bound
// keeps a crashed tab's stale flag from blocking everyone indefinitely.
func (r *Refresher) waitForOtherRefresh(ctx context.Context) bool {
	waited := time.Duration(0)
	for r.renewals.RefreshInProgress() {
		if waited >= r.config.WaitTimeout {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.config.WaitStep):
			waited += r.config.WaitStep
		}
	}
	return true
}

func (r *Refresher) callRefresh(ctx context.Context, refreshToken string) (*refreshResponse, bool) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, false
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+refreshPath, strings.NewReader(string(body)))
	if err != nil {
		return nil, false
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.httpClient.Do(request)
	if err != nil {
		r.logger.Info().Err(err).Msg("refresh request failed")
		return nil, false
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		r.logger.Info().Int("status", response.StatusCode).Msg("refresh request rejected")
		return nil, false
	}

	var result refreshResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		r.logger.Info().Err(err).Msg("malformed refresh response")
		return nil, false
	}
	if !result.Success || result.AccessToken == "" || result.RefreshToken == "" {
		r.logger.Info().Msg("incomplete refresh response")
		return nil, false
	}
	return &result, true
}

// Package transport attaches the current access credential to outbound
// requests, refreshes it when missing or rejected, and retries a rejected
// request exactly once.
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/client/credentials"
	"github.com/eventrian/go-session-service/client/storage"
	"github.com/eventrian/go-session-service/token/access"
)

// Refresher is the refresh capability the transport depends on.
type Refresher interface {
	TryRefresh(ctx context.Context) bool
}

// SessionTerminator tears down the local session when recovery is impossible.
type SessionTerminator interface {
	TerminateSession(ctx context.Context)
}

// AuthorizedTransport is an http.RoundTripper decorating a base transport.
type AuthorizedTransport struct {
	base       http.RoundTripper
	access     *credentials.Cache
	renewals   *storage.CredentialStore
	refresher  Refresher
	terminator SessionTerminator
	logger     zerolog.Logger
}

var _ http.RoundTripper = (*AuthorizedTransport)(nil)

func New(base http.RoundTripper, cache *credentials.Cache, renewals *storage.CredentialStore, refresher Refresher, terminator SessionTerminator, logger zerolog.Logger) *AuthorizedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthorizedTransport{
		base:       base,
		access:     cache,
		renewals:   renewals,
		refresher:  refresher,
		terminator: terminator,
		logger:     logger.With().Str("component", "transport").Logger(),
	}
}

func (t *AuthorizedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	accessToken := t.access.Get()
	renewalToken, _ := t.renewals.GetToken()

	// Nothing to authenticate with and nothing to recover from.
	if accessToken == "" && renewalToken == "" {
		t.logger.Info().Msg("both credentials missing, terminating session")
		t.terminator.TerminateSession(ctx)
		return unauthorizedResponse(req), nil
	}

	// A logout is in progress in this tab; do not race it.
	if t.access.UpdatesBlocked() {
		t.logger.Debug().Msg("credential updates blocked, rejecting request")
		return unauthorizedResponse(req), nil
	}

	if accessToken == "" || access.ExpiresWithin(accessToken, 0) {
		t.logger.Debug().Msg("access token missing or expired, refreshing before send")
		if !t.refresher.TryRefresh(ctx) {
			t.terminator.TerminateSession(ctx)
			return unauthorizedResponse(req), nil
		}
		accessToken = t.access.Get()
	}

	response, err := t.send(req, accessToken)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusUnauthorized {
		return response, nil
	}

	// One reactive refresh-and-retry cycle; a second rejection passes through.
	if !t.refresher.TryRefresh(ctx) {
		t.logger.Info().Msg("reactive refresh failed, terminating session")
		t.terminator.TerminateSession(ctx)
		return response, nil
	}

	newToken := t.access.Get()
	if newToken == "" {
		return response, nil
	}

	retry, ok := cloneRequest(req)
	if !ok {
		// The body cannot be replayed; hand back the original rejection.
		return response, nil
	}

	drainAndClose(response.Body)
	t.logger.Debug().Str("url", req.URL.String()).Msg("retrying request with refreshed token")
	return t.send(retry, newToken)
}

func (t *AuthorizedTransport) send(req *http.Request, token string) (*http.Response, error) {
	authorized := req.Clone(req.Context())
	if token != "" {
		authorized.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(authorized)
}

// cloneRequest produces a replayable copy of the request. Requests carrying a
// one-shot body without GetBody cannot be retried.
func cloneRequest(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}

func unauthorizedResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     http.StatusText(http.StatusUnauthorized),
		StatusCode: http.StatusUnauthorized,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

// Package authclient orchestrates the client side of a user session: login
// and registration establish credentials and the refresh cycle, logout tears
// everything down and tells the other tabs.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eventrian/go-session-service/auth"
	"github.com/eventrian/go-session-service/client/broadcast"
	"github.com/eventrian/go-session-service/client/credentials"
	"github.com/eventrian/go-session-service/client/refresher"
	"github.com/eventrian/go-session-service/client/storage"
	"github.com/eventrian/go-session-service/token/access"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	logoutPath   = "/auth/logout"
)

// Client drives the session lifecycle for one tab. The HTTP client used here
// is deliberately unauthenticated: auth endpoints never ride through the
// authorized transport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	access     *credentials.Cache
	renewals   *storage.CredentialStore
	refresher  *refresher.Refresher
	sync       *broadcast.Broadcaster
	logger     zerolog.Logger
}

func New(httpClient *http.Client, baseURL string, cache *credentials.Cache, renewals *storage.CredentialStore, sessionRefresher *refresher.Refresher, broadcaster *broadcast.Broadcaster, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		access:     cache,
		renewals:   renewals,
		refresher:  sessionRefresher,
		sync:       broadcaster,
		logger:     logger.With().Str("component", "authclient").Logger(),
	}

	// A matching logout broadcast terminates locally without re-broadcasting,
	// so the tabs cannot ping-pong logout messages forever.
	broadcaster.OnLogout(func() {
		if err := c.Logout(context.Background(), true); err != nil {
			c.logger.Error().Err(err).Msg("broadcast-triggered logout failed")
		}
	})

	return c
}

func (c *Client) Login(ctx context.Context, request auth.LoginRequest) (auth.LoginResponse, error) {
	// Reopen the gate in case a previous logout closed it.
	c.access.AllowUpdates()

	response, err := c.postJSON(ctx, loginPath, request)
	if err != nil {
		return failure(fmt.Sprintf("login request failed: %v", err)), nil
	}
	defer response.Body.Close()

	return c.handleAuthResponse(response, request.RememberMe)
}

func (c *Client) Register(ctx context.Context, request auth.RegisterRequest) (auth.LoginResponse, error) {
	c.access.AllowUpdates()

	response, err := c.postJSON(ctx, registerPath, request)
	if err != nil {
		return failure(fmt.Sprintf("registration request failed: %v", err)), nil
	}
	defer response.Body.Close()

	return c.handleAuthResponse(response, false)
}

// Logout ends the session in this tab. When fromBroadcast is set the logout
// was initiated elsewhere: the server call and the broadcast are skipped and
// only local state is cleared.
func (c *Client) Logout(ctx context.Context, fromBroadcast bool) error {
	c.access.BlockUpdates()

	accessToken := c.access.Get()
	if accessToken == "" {
		// Already logged out or never logged in.
		return nil
	}

	userID, err := access.UserIDOf(accessToken)
	if err != nil {
		c.logger.Debug().Err(err).Msg("could not read user from access token during logout")
	}

	c.access.Clear()
	c.refresher.Stop()

	if !fromBroadcast {
		if renewalToken, err := c.renewals.GetToken(); err == nil && renewalToken != "" {
			if response, err := c.postJSON(ctx, logoutPath, auth.LogoutRequest{RefreshToken: renewalToken}); err == nil {
				drain(response)
			} else {
				c.logger.Info().Err(err).Msg("server logout call failed, clearing local state anyway")
			}
		}
		if userID != "" {
			c.sync.BroadcastLogout(userID)
		}
	}

	if err := c.renewals.Remove(); err != nil {
		return err
	}
	c.sync.Clear()
	return nil
}

// TerminateSession is the transport's recovery escape hatch: a full local
// logout including server-side revocation.
func (c *Client) TerminateSession(ctx context.Context) {
	if err := c.Logout(ctx, false); err != nil {
		c.logger.Error().Err(err).Msg("session termination failed")
	}
}

func (c *Client) handleAuthResponse(response *http.Response, rememberMe bool) (auth.LoginResponse, error) {
	var result auth.LoginResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return failure(fmt.Sprintf("malformed response (status %d)", response.StatusCode)), nil
	}

	if response.StatusCode != http.StatusOK || !result.Success {
		if result.Message == "" {
			result.Message = fmt.Sprintf("request failed with status %d", response.StatusCode)
		}
		result.Success = false
		return result, nil
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		return failure("response is missing tokens"), nil
	}

	c.access.Set(result.AccessToken)
	if err := c.renewals.SetToken(result.RefreshToken, rememberMe); err != nil {
		return auth.LoginResponse{}, err
	}

	c.refresher.Start()

	if userID, err := access.UserIDOf(result.AccessToken); err == nil {
		c.sync.Register(userID)
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(request)
}

func failure(message string) auth.LoginResponse {
	return auth.LoginResponse{Success: false, Message: message}
}

func drain(response *http.Response) {
	if response.Body != nil {
		_ = response.Body.Close()
	}
}

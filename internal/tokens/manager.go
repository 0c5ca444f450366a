// package tokens owns the OAuth token lifecycle for the streaming
// provider: the initial authorization-code exchange, the expiry
// policy, and read-through refresh on access.
//
// Refresh is lazy and synchronous. There is no background refresh
// loop; the first access after expiry pays one extra round trip to
// the token endpoint and persists the new record before the access
// token is handed out. Two concurrent requests past expiry may both
// refresh; the store write is last-writer-wins.
package tokens

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gerrymanoim/to-listen/internal/secrets"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/store"
	"golang.org/x/oauth2"
)

// RefreshError reports a non-2xx response from the token endpoint
// during a refresh exchange. The refresh token is likely revoked and
// the user must re-link; callers must not retry inline.
type RefreshError struct {
	Status int
	Body   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh rejected: status %d: %s", e.Status, e.Body)
}

func (e *RefreshError) Unwrap() error { return shared.ErrRefreshFailed }

// ExchangeError reports a non-2xx response from the token endpoint
// during the initial authorization-code exchange.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("code exchange rejected: status %d: %s", e.Status, e.Body)
}

func (e *ExchangeError) Unwrap() error { return shared.ErrExchangeFailed }

// tokenResponse is the provider token endpoint's JSON body for both
// grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

// Manager loads, refreshes, and exchanges OAuth tokens against the
// provider token endpoint. Client credentials are resolved from the
// secret provider on every exchange.
type Manager struct {
	store   *store.Store
	secrets secrets.Provider
	conf    shared.SpotifyConfig
	client  *http.Client
	logger  *log.Logger
	skew    time.Duration
}

// New creates a [Manager]. The HTTP client defaults to one with a
// bounded timeout.
func New(st *store.Store, sp secrets.Provider, conf shared.SpotifyConfig, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		store:   st,
		secrets: sp,
		conf:    conf,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// WithSkew returns a copy of the manager that treats tokens expiring
// within the given window as already expired. Batch and queued
// contexts use this to tolerate clock and dispatch latency.
func (m *Manager) WithSkew(skew time.Duration) *Manager {
	clone := *m
	clone.skew = skew
	return &clone
}

// AuthURL builds the provider authorization redirect URL for the
// given state nonce: response_type=code, the configured redirect URI,
// and the space-joined scope list.
func (m *Manager) AuthURL(state string) (string, error) {
	clientID, err := m.secrets.Get(secrets.SpotifyClientID)
	if err != nil {
		return "", err
	}

	conf := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: m.conf.RedirectURI,
		Scopes:      m.conf.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.conf.AuthURL,
			TokenURL: m.conf.TokenURL,
		},
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ValidAccessToken returns an access token for the user, refreshing
// it first when expired. The refreshed record is persisted before the
// token is returned; on refresh failure the stored record is left
// untouched and the error unwraps to [shared.ErrRefreshFailed].
//
// Returns [shared.ErrNotLinked] when the user has no token record.
func (m *Manager) ValidAccessToken(ctx context.Context, uid string) (string, error) {
	rec, err := m.store.LoadTokenRecord(uid)
	if errors.Is(err, shared.ErrNotFound) {
		return "", fmt.Errorf("%w: user %s", shared.ErrNotLinked, uid)
	}
	if err != nil {
		return "", err
	}
	if rec.AccessToken == "" {
		// A record holding only a state nonce means the user started
		// linking but never completed the callback.
		return "", fmt.Errorf("%w: user %s", shared.ErrNotLinked, uid)
	}

	if !rec.Expired(time.Now().UTC(), m.skew) {
		return rec.AccessToken, nil
	}

	fresh, err := m.refresh(ctx, rec)
	if err != nil {
		return "", err
	}

	if err := m.store.SaveTokenRecord(uid, fresh); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Info("refreshed access token", "uid", uid)
	return fresh.AccessToken, nil
}

// refresh performs one synchronous refresh exchange with HTTP Basic
// auth built from the client credentials.
func (m *Manager) refresh(ctx context.Context, rec store.TokenRecord) (store.TokenRecord, error) {
	if rec.RefreshToken == "" {
		return store.TokenRecord{}, fmt.Errorf("%w: no refresh token on record", shared.ErrRefreshFailed)
	}

	clientID, clientSecret, err := secrets.Credentials(m.secrets)
	if err != nil {
		return store.TokenRecord{}, err
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {rec.RefreshToken},
	}

	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	resp, err := m.postForm(ctx, form, map[string]string{"Authorization": "Basic " + basic})
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if resp.status < 200 || resp.status >= 300 {
		m.logger.Error("token refresh rejected", "status", resp.status, "body", resp.body)
		return store.TokenRecord{}, &RefreshError{Status: resp.status, Body: resp.body}
	}

	fresh := resp.record()
	if fresh.RefreshToken == "" {
		// Provider may omit the refresh token on refresh responses;
		// carry the existing one forward.
		fresh.RefreshToken = rec.RefreshToken
	}
	return fresh, nil
}

// ExchangeCode performs the authorization-code exchange and returns
// the resulting record. The caller persists it alongside the profile
// fetch; nothing is written here.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (store.TokenRecord, error) {
	clientID, clientSecret, err := secrets.Credentials(m.secrets)
	if err != nil {
		return store.TokenRecord{}, err
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {m.conf.RedirectURI},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	resp, err := m.postForm(ctx, form, nil)
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("%w: %v", shared.ErrExchangeFailed, err)
	}

	if resp.status < 200 || resp.status >= 300 {
		m.logger.Error("code exchange rejected", "status", resp.status, "body", resp.body)
		return store.TokenRecord{}, &ExchangeError{Status: resp.status, Body: resp.body}
	}

	return resp.record(), nil
}

type formResult struct {
	status  int
	body    string
	decoded tokenResponse
}

func (r formResult) record() store.TokenRecord {
	return store.TokenRecord{
		AccessToken:  r.decoded.AccessToken,
		RefreshToken: r.decoded.RefreshToken,
		TokenType:    r.decoded.TokenType,
		Scope:        r.decoded.Scope,
		ExpiresIn:    r.decoded.ExpiresIn,
	}
}

// postForm sends a form-encoded POST to the token endpoint and
// decodes a token response on success.
func (m *Manager) postForm(ctx context.Context, form url.Values, headers map[string]string) (formResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.conf.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return formResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return formResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return formResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	result := formResult{status: resp.StatusCode, body: string(body)}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, &result.decoded); err != nil {
			return formResult{}, fmt.Errorf("failed to decode token response: %w", err)
		}
	}
	return result, nil
}

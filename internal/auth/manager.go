package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/topmix/internal/repositories"
	"github.com/desertthunder/topmix/internal/shared"
)

// expiryLeeway treats tokens as expired slightly early, matching oauth2's own delta.
const expiryLeeway = 10 * time.Second

// TokenManager owns the persisted [TokenSet] for a single user.
//
// It is the only component that reads or writes credential keys.
type TokenManager struct {
	client     shared.ClientConfig
	oauth      *oauth2.Config
	store      repositories.CredentialStore
	httpClient *http.Client
	timeout    time.Duration
	logger     *log.Logger
	now        func() time.Time

	refreshMu sync.Mutex
}

// Option configures a [TokenManager].
type Option func(*TokenManager)

// WithHTTPClient sets the client used for token endpoint requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *TokenManager) { m.httpClient = c }
}

// WithTimeout bounds every token endpoint request.
func WithTimeout(d time.Duration) Option {
	return func(m *TokenManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *TokenManager) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a [TokenManager] for client backed by store.
func NewTokenManager(client shared.ClientConfig, store repositories.CredentialStore, opts ...Option) *TokenManager {
	m := &TokenManager{
		client:  client,
		oauth:   OAuthConfig(client),
		store:   store,
		timeout: 30 * time.Second,
		logger:  log.New(io.Discard),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OAuthConfig converts a [shared.ClientConfig] to an [oauth2.Config].
//
// Client credentials are sent in a Basic Authorization header.
func OAuthConfig(c shared.ClientConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizationEndpoint,
			TokenURL:  c.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		RedirectURL: c.RedirectURI,
		Scopes:      append([]string(nil), c.Scopes...),
	}
}

// AuthCodeURL builds the consent page URL for state.
func (m *TokenManager) AuthCodeURL(state string) string {
	var opts []oauth2.AuthCodeOption
	if m.client.ShowDialog {
		opts = append(opts, oauth2.SetAuthURLParam("show_dialog", "true"))
	}
	return m.oauth.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens and persists them before returning.
func (m *TokenManager) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", shared.ErrInvalidInput)
	}

	netCtx, cancel := m.requestContext(ctx)
	defer cancel()

	issuedAt := m.now()
	tok, err := m.oauth.Exchange(netCtx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	set, err := tokenSetFrom(tok, issuedAt)
	if err != nil {
		return nil, err
	}

	if err := m.Persist(ctx, *set); err != nil {
		return nil, err
	}

	m.logger.Info("authorization code exchanged", "expires_at", set.ExpiresAt().Format(time.RFC3339))
	return set, nil
}

// Persist writes set under the four credential keys. The access token is written last.
func (m *TokenManager) Persist(ctx context.Context, set TokenSet) error {
	if err := set.Validate(); err != nil {
		return err
	}

	if set.RefreshToken == "" {
		if err := m.store.Delete(ctx, KeyRefreshToken); err != nil {
			return storageError("delete", KeyRefreshToken, err)
		}
	}

	writes := []struct{ key, value string }{
		{KeyExpires, set.ExpiresAt().UTC().Format(time.RFC3339)},
		{KeyExpiresIn, strconv.FormatInt(set.ExpiresIn, 10)},
		{KeyRefreshToken, set.RefreshToken},
		{KeyAccessToken, set.AccessToken},
	}

	for _, w := range writes {
		if w.key == KeyRefreshToken && w.value == "" {
			continue
		}
		if err := m.store.Set(ctx, w.key, w.value); err != nil {
			return storageError("set", w.key, err)
		}
	}
	return nil
}

// CurrentAccessToken returns the stored access token without checking expiry.
func (m *TokenManager) CurrentAccessToken(ctx context.Context) (string, bool, error) {
	token, ok, err := m.store.Get(ctx, KeyAccessToken)
	if err != nil {
		return "", false, storageError("get", KeyAccessToken, err)
	}
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Load reconstructs the persisted [TokenSet].
//
// An unreadable expiry yields a set that reports as long expired.
func (m *TokenManager) Load(ctx context.Context) (*TokenSet, error) {
	access, ok, err := m.CurrentAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotAuthenticated
	}

	values := make(map[string]string, len(credentialKeys))
	for _, key := range []string{KeyRefreshToken, KeyExpiresIn, KeyExpires} {
		v, _, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, storageError("get", key, err)
		}
		values[key] = v
	}

	set := &TokenSet{AccessToken: access, RefreshToken: values[KeyRefreshToken]}
	set.ExpiresIn, _ = strconv.ParseInt(values[KeyExpiresIn], 10, 64)

	if expires, err := time.Parse(time.RFC3339, values[KeyExpires]); err == nil {
		set.IssuedAt = expires.Add(-time.Duration(set.ExpiresIn) * time.Second)
	}
	return set, nil
}

// IsExpired compares the stored expiry instant with the current time.
// A missing or unreadable expiry counts as expired.
func (m *TokenManager) IsExpired(ctx context.Context) (bool, error) {
	raw, ok, err := m.store.Get(ctx, KeyExpires)
	if err != nil {
		return false, storageError("get", KeyExpires, err)
	}
	if !ok {
		return true, nil
	}

	expires, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		m.logger.Warn("stored expiry is unreadable", "value", raw)
		return true, nil
	}
	return !m.now().Add(expiryLeeway).Before(expires), nil
}

// Refresh obtains a new access token with the stored refresh token and persists it.
//
// The previous refresh token is kept when the server does not rotate it.
func (m *TokenManager) Refresh(ctx context.Context) (*TokenSet, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	refresh, ok, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return nil, storageError("get", KeyRefreshToken, err)
	}
	if !ok || refresh == "" {
		return nil, shared.ErrNoRefreshToken
	}

	netCtx, cancel := m.requestContext(ctx)
	defer cancel()

	issuedAt := m.now()
	tok, err := m.oauth.TokenSource(netCtx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, exchangeError(err))
	}

	set, err := tokenSetFrom(tok, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if set.RefreshToken == "" {
		set.RefreshToken = refresh
	}

	if err := m.Persist(ctx, *set); err != nil {
		return nil, err
	}

	m.logger.Info("access token refreshed", "expires_at", set.ExpiresAt().Format(time.RFC3339))
	return set, nil
}

// AccessToken returns a usable access token, refreshing the stored one first when it has expired.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := m.CurrentAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", shared.ErrNotAuthenticated
	}

	expired, err := m.IsExpired(ctx)
	if err != nil {
		return "", err
	}
	if !expired {
		return token, nil
	}

	m.logger.Debug("access token expired, refreshing")
	set, err := m.Refresh(ctx)
	if errors.Is(err, shared.ErrNoRefreshToken) {
		return "", fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
	}
	if err != nil {
		return "", err
	}
	return set.AccessToken, nil
}

// Clear deletes every credential key. It is safe to call when nothing is stored.
func (m *TokenManager) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range credentialKeys {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &shared.StorageError{Operation: "delete", Err: errors.Join(errs...)}
	}
	return nil
}

// TokenSource adapts the manager to [oauth2.TokenSource] for callers that want an authorized *http.Client.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		access, err := m.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func (m *TokenManager) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// tokenSetFrom validates the token endpoint response.
func tokenSetFrom(tok *oauth2.Token, issuedAt time.Time) (*TokenSet, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, &shared.AuthExchangeError{Err: errors.New("response missing access_token")}
	}

	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = extraSeconds(tok.Extra("expires_in"))
	}
	if expiresIn <= 0 {
		return nil, &shared.AuthExchangeError{Err: fmt.Errorf("expires_in must be positive, got %d", expiresIn)}
	}

	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		IssuedAt:     issuedAt,
	}, nil
}

func extraSeconds(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// exchangeError maps oauth2 failures to [shared.AuthExchangeError].
func exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &shared.AuthExchangeError{Status: status, Code: retrieveErr.ErrorCode, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &shared.AuthExchangeError{Err: fmt.Errorf("%w: %w", shared.ErrTimeout, err)}
	}
	return &shared.AuthExchangeError{Err: err}
}

func storageError(op, key string, err error) error {
	var se *shared.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &shared.StorageError{Operation: op, Key: key, Err: err}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/ads-adapter/internal/metrics"
	"github.com/Checker-Finance/ads-adapter/pkg/apierror"
	"github.com/Checker-Finance/ads-adapter/pkg/utils"
)

const (
	// DefaultTokenURL is the Login with Amazon token endpoint.
	DefaultTokenURL = "https://api.amazon.com/auth/o2/token"
	// DefaultExpiryBuffer is how long before expiry a token stops being handed out.
	DefaultExpiryBuffer = 60 * time.Second
	// DefaultRefreshTimeout bounds one token exchange.
	DefaultRefreshTimeout = 30 * time.Second

	defaultExpiresIn = 3600
	refreshKey       = "refresh"
)

// Options tune a TokenManager. Zero values select defaults.
type Options struct {
	TokenURL       string
	HTTPClient     *http.Client
	ExpiryBuffer   time.Duration
	RefreshTimeout time.Duration
	Store          Store
}

// TokenManager owns the access token of exactly one credential set.
// Concurrent refreshes collapse into a single exchange.
type TokenManager struct {
	logger         *zap.Logger
	creds          Credentials
	tokenURL       string
	client         *http.Client
	buffer         time.Duration
	refreshTimeout time.Duration
	store          Store
	storeKey       string
	now            func() time.Time

	mu       sync.RWMutex
	token    Token
	rejected string // last token invalidated as rejected; never reloaded from the store

	group singleflight.Group
}

// NewTokenManager creates a TokenManager for creds.
func NewTokenManager(logger *zap.Logger, creds Credentials, opts Options) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &TokenManager{
		logger:         logger,
		creds:          creds,
		tokenURL:       opts.TokenURL,
		client:         opts.HTTPClient,
		buffer:         opts.ExpiryBuffer,
		refreshTimeout: opts.RefreshTimeout,
		store:          opts.Store,
		storeKey:       StoreKey(creds),
		now:            time.Now,
	}
	if m.tokenURL == "" {
		m.tokenURL = DefaultTokenURL
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: DefaultRefreshTimeout}
	}
	if m.buffer <= 0 {
		m.buffer = DefaultExpiryBuffer
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = DefaultRefreshTimeout
	}
	return m
}

func (m *TokenManager) valid(tok Token, now time.Time) bool {
	return tok.AccessToken != "" && now.Before(tok.ExpiresAt.Add(-m.buffer))
}

// Current returns the cached access token if it is still valid.
func (m *TokenManager) Current() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.valid(m.token, m.now()) {
		return m.token.AccessToken, true
	}
	return "", false
}

// Snapshot returns a copy of the cached token, valid or not.
func (m *TokenManager) Snapshot() Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Token returns a valid access token, refreshing if necessary.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.Current(); ok {
		return tok, nil
	}
	return m.Refresh(ctx, "")
}

// Authenticate discards the cached token and performs a fresh exchange.
func (m *TokenManager) Authenticate(ctx context.Context) (Token, error) {
	if _, err := m.Refresh(ctx, m.Snapshot().AccessToken); err != nil {
		return Token{}, err
	}
	return m.Snapshot(), nil
}

// Refresh obtains a new access token. A non-empty stale token is invalidated
// first so it can no longer be returned. All concurrent callers wait on the
// same exchange; each gives up when its own ctx is done without cancelling the
// exchange for the others.
func (m *TokenManager) Refresh(ctx context.Context, stale string) (string, error) {
	if stale != "" {
		m.invalidate(stale)
	}

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(exchangeCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *TokenManager) invalidate(stale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token.AccessToken == stale {
		m.token = Token{}
	}
	m.rejected = stale
}

// refresh runs inside the single flight.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	current, rejected := m.token, m.rejected
	m.mu.RUnlock()
	if m.valid(current, m.now()) {
		return current.AccessToken, nil
	}

	if m.store != nil {
		stored, ok, err := m.store.Load(ctx, m.storeKey)
		switch {
		case err != nil:
			m.logger.Warn("ads.auth.store_load_failed", zap.Error(err))
		case ok && stored.AccessToken != rejected && m.valid(stored, m.now()):
			m.set(stored)
			metrics.IncTokenRefresh("store_hit")
			m.logger.Debug("ads.auth.token_restored",
				zap.String("client_id", utils.MaskSecret(m.creds.ClientID)),
				zap.Time("expires_at", stored.ExpiresAt))
			return stored.AccessToken, nil
		}
	}

	tok, err := m.exchange(ctx)
	if err != nil {
		m.clear(ctx)
		metrics.IncTokenRefresh("failure")
		m.logger.Warn("ads.auth.token_refresh_failed",
			zap.String("client_id", utils.MaskSecret(m.creds.ClientID)),
			zap.Error(err))
		return "", err
	}

	m.set(tok)
	if m.store != nil {
		if err := m.store.Save(ctx, m.storeKey, tok); err != nil {
			m.logger.Warn("ads.auth.store_save_failed", zap.Error(err))
		}
	}
	metrics.IncTokenRefresh("success")
	m.logger.Info("ads.auth.token_refreshed",
		zap.String("client_id", utils.MaskSecret(m.creds.ClientID)),
		zap.Time("expires_at", tok.ExpiresAt))
	return tok.AccessToken, nil
}

func (m *TokenManager) set(tok Token) {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
}

// clear drops the token after a failed refresh so it is never reused.
func (m *TokenManager) clear(ctx context.Context) {
	m.mu.Lock()
	m.token = Token{}
	m.mu.Unlock()
	if m.store != nil {
		if err := m.store.Delete(ctx, m.storeKey); err != nil {
			m.logger.Warn("ads.auth.store_delete_failed", zap.Error(err))
		}
	}
}

// exchange trades the refresh token for an access token.
func (m *TokenManager) exchange(ctx context.Context) (Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.creds.RefreshToken},
		"client_id":     {m.creds.ClientID},
		"client_secret": {m.creds.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("ads auth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return Token{}, &apierror.TransientAuthError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, &apierror.TransientAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Token{}, &apierror.TransientAuthError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	if resp.StatusCode != http.StatusOK {
		var lwaErr lwaErrorResponse
		_ = json.Unmarshal(body, &lwaErr)
		return Token{}, &apierror.AuthError{
			StatusCode:  resp.StatusCode,
			Code:        lwaErr.Error,
			Description: lwaErr.ErrorDescription,
			Body:        body,
		}
	}

	var tr lwaTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, &apierror.TransientAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return Token{}, &apierror.AuthError{StatusCode: resp.StatusCode, Code: "empty_access_token", Body: body}
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

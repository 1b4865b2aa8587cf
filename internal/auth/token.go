// Package auth manages the OAuth2 bearer token used by the OCR endpoint.
//
// Tokens are obtained with the client-credentials grant, cached in memory and
// refreshed RefreshMargin before the provider-reported expiry. Nothing is
// persisted: a restart always begins with an empty cache.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
	"ocrbot/internal/logger"
	"ocrbot/internal/metrics"
)

const (
	// RefreshMargin is subtracted from the reported lifetime so a token is
	// replaced before the provider starts rejecting it.
	RefreshMargin = 300 * time.Second

	// DefaultTokenLifetime applies when the exchange response omits expires_in.
	DefaultTokenLifetime = 30 * 24 * time.Hour
)

// Credentials identify the application against the token and OCR endpoints.
type Credentials struct {
	APIKey         string
	SecretKey      string
	TokenURL       string
	RecognitionURL string
}

// Configured reports whether both keys are present.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// Token is a cached bearer token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for the exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = client
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithTimeout bounds every exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// Manager acquires and caches the bearer token. It is safe for concurrent use;
// concurrent refreshes collapse into a single exchange.
type Manager struct {
	creds      Credentials
	oauth      clientcredentials.Config
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
	log        zerolog.Logger

	mu    sync.RWMutex
	token Token
	group singleflight.Group
}

// NewManager creates a token manager for the given credentials.
func NewManager(creds Credentials, opts ...Option) *Manager {
	m := &Manager{
		creds: creds,
		oauth: clientcredentials.Config{
			ClientID:     creds.APIKey,
			ClientSecret: creds.SecretKey,
			TokenURL:     creds.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: http.DefaultClient,
		now:        time.Now,
		log:        logger.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid bearer token, exchanging credentials only when the
// cache is cold or expired.
func (m *Manager) Token(ctx context.Context) (Token, error) {
	const op = "Token"

	if !m.creds.Configured() {
		return Token{}, NewAuthError(op, ErrNotConfigured, "api key and secret key are required")
	}

	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	// The flight outlives any one caller; m.timeout bounds it instead.
	ch := m.group.DoChan("token", func() (interface{}, error) {
		// Another flight may have refreshed while we waited.
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return m.exchange(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		if res.Shared {
			m.log.Debug().Msg("Joined in-flight token exchange")
		}
		return res.Val.(Token), nil
	case <-ctx.Done():
		return Token{}, NewAuthError(op, ctx.Err(), "gave up waiting for token exchange")
	}
}

// Invalidate drops the cached token so the next call performs an exchange.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = Token{}
	m.mu.Unlock()
	m.log.Info().Msg("Cached access token invalidated")
}

func (m *Manager) cached() (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token.Valid(m.now()) {
		return m.token, true
	}
	return Token{}, false
}

func (m *Manager) exchange(ctx context.Context) (Token, error) {
	const op = "exchange"

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	start := m.now()
	raw, err := m.oauth.Token(ctx)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues("error").Inc()
		details := exchangeFailureReason(err)
		m.log.Error().
			Err(err).
			Str("token_url", m.creds.TokenURL).
			Str("reason", details).
			Msg("Failed to obtain access token")
		return Token{}, NewAuthError(op, ErrExchangeFailed, details)
	}

	expiry := raw.Expiry
	if expiry.IsZero() {
		expiry = start.Add(DefaultTokenLifetime)
	}
	tok := Token{
		Value:     raw.AccessToken,
		ExpiresAt: expiry.Add(-RefreshMargin),
	}

	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()

	metrics.TokenExchangesTotal.WithLabelValues("success").Inc()
	m.log.Info().
		Time("expires_at", tok.ExpiresAt).
		Msg("Obtained new access token")

	return tok, nil
}

// exchangeFailureReason prefers the provider's error_description over the
// generic transport message.
func exchangeFailureReason(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
	}
	return err.Error()
}

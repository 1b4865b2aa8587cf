package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type tokenServer struct {
	calls    atomic.Int32
	delay    time.Duration
	mu       sync.Mutex
	response string
	status   int
	lastForm map[string]string
}

func (s *tokenServer) setResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.response = body
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.lastForm = map[string]string{
		"grant_type":    r.PostForm.Get("grant_type"),
		"client_id":     r.PostForm.Get("client_id"),
		"client_secret": r.PostForm.Get("client_secret"),
	}
	status, body := s.status, s.response
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTokenServer(t *testing.T, body string) (*tokenServer, *httptest.Server) {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK, response: body}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	return ts, srv
}

func testCredentials(tokenURL string) Credentials {
	return Credentials{
		APIKey:    "api-key",
		SecretKey: "secret-key",
		TokenURL:  tokenURL,
	}
}

func TestTokenCachedWithinWindow(t *testing.T) {
	ts, srv := newTokenServer(t, `{"access_token":"tok-1","expires_in":2592000}`)
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()))

	first, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	second, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() second call error = %v", err)
	}

	if first != second || first.Value != "tok-1" {
		t.Fatalf("expected identical cached token, got %+v and %+v", first, second)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Fatalf("expected 1 exchange, got %d", got)
	}

	ts.mu.Lock()
	form := ts.lastForm
	ts.mu.Unlock()
	if form["grant_type"] != "client_credentials" || form["client_id"] != "api-key" || form["client_secret"] != "secret-key" {
		t.Fatalf("unexpected exchange form: %+v", form)
	}
}

func TestTokenNotConfigured(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"missing api key", Credentials{SecretKey: "s"}},
		{"missing secret key", Credentials{APIKey: "k"}},
		{"missing both", Credentials{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, srv := newTokenServer(t, `{"access_token":"tok","expires_in":3600}`)
			tt.creds.TokenURL = srv.URL
			m := NewManager(tt.creds, WithHTTPClient(srv.Client()))

			_, err := m.Token(context.Background())
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("expected ErrNotConfigured, got %v", err)
			}
			if got := ts.calls.Load(); got != 0 {
				t.Fatalf("expected no network call, got %d", got)
			}
		})
	}
}

func TestTokenRefreshesInsideMargin(t *testing.T) {
	// expires_in 400s leaves 100s of usable lifetime after the margin.
	ts, srv := newTokenServer(t, `{"access_token":"tok-1","expires_in":400}`)

	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()), WithClock(clock))

	first, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if until := time.Until(first.ExpiresAt); until > 101*time.Second || until < 90*time.Second {
		t.Fatalf("expiry not shifted by the refresh margin: %s left", until)
	}

	ts.setResponse(http.StatusOK, `{"access_token":"tok-2","expires_in":400}`)
	offset.Store(int64(200 * time.Second))

	second, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() after expiry error = %v", err)
	}
	if second.Value != "tok-2" {
		t.Fatalf("expected refreshed token, got %q", second.Value)
	}
	if got := ts.calls.Load(); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestTokenExchangeFailureKeepsCache(t *testing.T) {
	ts, srv := newTokenServer(t, `{"access_token":"tok-1","expires_in":400}`)

	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()), WithClock(clock))

	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	ts.setResponse(http.StatusUnauthorized, `{"error":"invalid_client","error_description":"unknown client id"}`)
	offset.Store(int64(200 * time.Second))

	_, err := m.Token(context.Background())
	if !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown client id") {
		t.Fatalf("expected provider description in error, got %v", err)
	}

	m.mu.RLock()
	kept := m.token.Value
	m.mu.RUnlock()
	if kept != "tok-1" {
		t.Fatalf("prior cache overwritten: %q", kept)
	}
}

func TestTokenMissingAccessToken(t *testing.T) {
	_, srv := newTokenServer(t, `{"expires_in":3600}`)
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()))

	if _, err := m.Token(context.Background()); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
}

func TestTokenConcurrentRefreshCollapses(t *testing.T) {
	ts, srv := newTokenServer(t, `{"access_token":"tok","expires_in":3600}`)
	ts.delay = 50 * time.Millisecond
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Token(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Token() error = %v", err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Fatalf("expected a single exchange, got %d", got)
	}
}

func TestInvalidateForcesExchange(t *testing.T) {
	ts, srv := newTokenServer(t, `{"access_token":"tok","expires_in":3600}`)
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()))

	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	m.Invalidate()
	if _, err := m.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got := ts.calls.Load(); got != 2 {
		t.Fatalf("expected 2 exchanges, got %d", got)
	}
}

func TestTokenExchangeSurvivesCanceledCaller(t *testing.T) {
	ts, srv := newTokenServer(t, `{"access_token":"tok","expires_in":3600}`)
	ts.delay = 200 * time.Millisecond
	m := NewManager(testCredentials(srv.URL), WithHTTPClient(srv.Client()), WithTimeout(5*time.Second))

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Token(shortCtx)
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ts.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("exchange never started")
		}
		time.Sleep(time.Millisecond)
	}

	tok, err := m.Token(context.Background())
	if err != nil {
		t.Fatalf("joined caller Token() error = %v", err)
	}
	if tok.Value != "tok" {
		t.Fatalf("token = %q, want tok", tok.Value)
	}
	if err := <-firstErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the short caller to see its own deadline, got %v", err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Fatalf("expected a single exchange, got %d", got)
	}
}

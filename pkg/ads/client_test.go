package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAmazon serves both the token endpoint and the API from one server.
type fakeAmazon struct {
	t      *testing.T
	srv    *httptest.Server
	mux    *http.ServeMux
	issued atomic.Int32

	mu        sync.Mutex
	tokenFor  map[string]string // access token → client id
	expiresIn int64
	lwaDelay  time.Duration
	lwaReject string // LWA error code returned instead of a token
}

func newFakeAmazon(t *testing.T) *fakeAmazon {
	t.Helper()
	f := &fakeAmazon{
		t:         t,
		mux:       http.NewServeMux(),
		tokenFor:  map[string]string{},
		expiresIn: 3600,
	}
	f.mux.HandleFunc("POST /auth/o2/token", f.token)
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAmazon) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	if f.lwaDelay > 0 {
		time.Sleep(f.lwaDelay)
	}
	if f.lwaReject != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": f.lwaReject})
		return
	}
	n := f.issued.Add(1)
	clientID := r.PostForm.Get("client_id")
	access := fmt.Sprintf("Atza|%s|%d", clientID, n)

	f.mu.Lock()
	f.tokenFor[access] = clientID
	expiresIn := f.expiresIn
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": access,
		"token_type":   "bearer",
		"expires_in":   expiresIn,
	})
}

// owner returns the client id the bearer token on r was issued to.
func (f *fakeAmazon) owner(r *http.Request) string {
	access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenFor[access]
}

func (f *fakeAmazon) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

func (f *fakeAmazon) config(clientID string) Config {
	return Config{
		Credentials: Credentials{
			ClientID:     clientID,
			ClientSecret: "secret-" + clientID,
			RefreshToken: "Atzr|" + clientID,
		},
		BaseURL:    f.srv.URL,
		TokenURL:   f.srv.URL + "/auth/o2/token",
		ProfileID:  "111",
		MaxRetries: 2,
		Timeout:    5 * time.Second,
		Backoff:    Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

func (f *fakeAmazon) client(clientID string) *Client {
	f.t.Helper()
	c, err := New(zap.NewNop(), f.config(clientID))
	require.NoError(f.t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
	assert.Contains(t, err.Error(), "refresh token is required")

	_, err = New(nil, Config{
		Credentials: Credentials{ClientID: "a", ClientSecret: "b", RefreshToken: "c"},
		Region:      "MARS",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown region")

	_, err = New(nil, Config{
		Credentials: Credentials{ClientID: "a", ClientSecret: "b", RefreshToken: "c"},
		MaxRetries:  -2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoRetries (-1)")
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(nil, Config{Credentials: Credentials{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}})
	require.NoError(t, err)
	assert.Equal(t, "https://advertising-api.amazon.com", c.BaseURL())
	assert.Equal(t, DefaultMaxRetries, c.cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)

	c, err = New(nil, Config{
		Credentials: Credentials{ClientID: "a", ClientSecret: "b", RefreshToken: "c"},
		Region:      RegionFE,
		MaxRetries:  NoRetries,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://advertising-api-fe.amazon.com", c.BaseURL())
	assert.Equal(t, 0, c.cfg.MaxRetries)
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion(" eu ")
	require.NoError(t, err)
	assert.Equal(t, RegionEU, r)
	assert.Equal(t, "https://advertising-api-eu.amazon.com", r.BaseURL())

	_, err = ParseRegion("SA")
	assert.Error(t, err)
}

func TestDo_SendsAmazonHeaders(t *testing.T) {
	f := newFakeAmazon(t)
	f.handle("POST /sp/campaigns/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client-a", r.Header.Get(HeaderClientID))
		assert.Equal(t, "111", r.Header.Get(HeaderScope))
		assert.Equal(t, "client-a", f.owner(r))
		assert.Equal(t, ContentTypeSPCampaign, r.Header.Get("Content-Type"))
		assert.Equal(t, ContentTypeSPCampaign, r.Header.Get("Accept"))
		writeJSON(w, http.StatusOK, map[string]any{"campaigns": []any{}})
	})

	c := f.client("client-a")
	_, err := c.ListCampaigns(context.Background(), CampaignFilter{})
	require.NoError(t, err)
}

func TestDo_ProfileOverrides(t *testing.T) {
	f := newFakeAmazon(t)
	var scopes []string
	var mu sync.Mutex
	f.handle("GET /scoped", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		scopes = append(scopes, r.Header.Get(HeaderScope))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	c := f.client("client-a")
	ctx := context.Background()

	_, err := c.Do(ctx, &Request{Path: "/scoped"})
	require.NoError(t, err)
	_, err = c.Do(ctx, &Request{Path: "/scoped", ProfileID: "222"})
	require.NoError(t, err)

	c.SetProfile("333")
	assert.Equal(t, "333", c.ProfileID())
	_, err = c.Do(ctx, &Request{Path: "/scoped"})
	require.NoError(t, err)

	other := c.WithProfile("444")
	_, err = other.Do(ctx, &Request{Path: "/scoped"})
	require.NoError(t, err)

	assert.Equal(t, []string{"111", "222", "333", "444"}, scopes)
	assert.Equal(t, "333", c.ProfileID(), "WithProfile leaves the parent untouched")
	assert.Equal(t, int32(1), f.issued.Load(), "profile copies share one token")
}

func TestDo_QueryAndDecode(t *testing.T) {
	f := newFakeAmazon(t)
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "seller", r.URL.Query().Get("profileTypeFilter"))
		writeJSON(w, http.StatusOK, []map[string]any{{"profileId": 42, "countryCode": "US"}})
	})

	c := f.client("client-a")
	var out []Profile
	err := c.GetJSON(context.Background(), "/v2/profiles", url.Values{"profileTypeFilter": {"seller"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(42), out[0].ProfileID)
}

func TestResponse_DecodeEmptyBody(t *testing.T) {
	var v map[string]any
	assert.NoError(t, (&Response{StatusCode: http.StatusNoContent}).Decode(&v))
	assert.Nil(t, v)

	err := (&Response{Body: []byte("{broken")}).Decode(&v)
	assert.Error(t, err)
}

func TestAuthenticate_ForcesExchange(t *testing.T) {
	f := newFakeAmazon(t)
	c := f.client("client-a")

	require.NoError(t, c.Authenticate(context.Background()))
	first := c.Token()
	require.NoError(t, c.Authenticate(context.Background()))

	assert.Equal(t, int32(2), f.issued.Load())
	assert.NotEqual(t, first.AccessToken, c.Token().AccessToken)
	assert.True(t, c.Token().ExpiresAt.After(time.Now().Add(59*time.Minute)))
}

// Concurrent calls with no valid token trigger exactly one refresh.
func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	f := newFakeAmazon(t)
	f.lwaDelay = 50 * time.Millisecond
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})

	c := f.client("client-a")
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListProfiles(context.Background(), ProfileFilter{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.issued.Load())
}

// Back-to-back calls reuse the token until it nears expiry.
func TestBackToBackCallsReuseToken(t *testing.T) {
	f := newFakeAmazon(t)
	var mu sync.Mutex
	var seen []string
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, []any{})
	})

	c := f.client("client-a")
	for i := 0; i < 2; i++ {
		_, err := c.ListProfiles(context.Background(), ProfileFilter{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.issued.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

// A token inside the expiry buffer is never sent.
func TestExpiredTokenIsRefreshedBeforeSending(t *testing.T) {
	f := newFakeAmazon(t)
	f.expiresIn = 30 // shorter than the 60s buffer: stale as soon as issued
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})

	c := f.client("client-a")
	for i := 0; i < 3; i++ {
		_, err := c.ListProfiles(context.Background(), ProfileFilter{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), f.issued.Load())
}

// Two clients with different credentials never observe each other's tokens.
func TestClientsAreIsolated(t *testing.T) {
	f := newFakeAmazon(t)
	var mismatches atomic.Int32
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		if f.owner(r) != r.Header.Get(HeaderClientID) {
			mismatches.Add(1)
		}
		writeJSON(w, http.StatusOK, []any{})
	})

	a := f.client("client-a")
	b := f.client("client-b")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = a.ListProfiles(context.Background(), ProfileFilter{}) }()
		go func() { defer wg.Done(); _, _ = b.ListProfiles(context.Background(), ProfileFilter{}) }()
	}
	wg.Wait()

	assert.Equal(t, int32(0), mismatches.Load())
	assert.Equal(t, int32(2), f.issued.Load(), "one refresh per client")
	assert.NotEqual(t, a.Token().AccessToken, b.Token().AccessToken)
}

// A 401 causes exactly one refresh and one retried request.
func TestUnauthorizedRefreshesOnce(t *testing.T) {
	f := newFakeAmazon(t)
	var calls atomic.Int32
	var rejected atomic.Value
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			rejected.Store(r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NotEqual(t, rejected.Load(), r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []any{})
	})

	c := f.client("client-a")
	_, err := c.ListProfiles(context.Background(), ProfileFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), f.issued.Load())
}

// A second 401 fails with AuthError and no further refresh.
func TestRepeatedUnauthorizedIsAuthError(t *testing.T) {
	f := newFakeAmazon(t)
	var calls atomic.Int32
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := f.client("client-a")
	_, err := c.ListProfiles(context.Background(), ProfileFilter{})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), f.issued.Load())
}

// A 429 with Retry-After delays the next attempt by at least that long.
func TestRetryAfterIsHonored(t *testing.T) {
	f := newFakeAmazon(t)
	var mu sync.Mutex
	var times []time.Time
	f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		first := len(times) == 1
		mu.Unlock()
		if first {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, []any{})
	})

	c := f.client("client-a")
	_, err := c.ListProfiles(context.Background(), ProfileFilter{})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), time.Second)
}

func TestExhaustedRetries(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Equal(t, 3, apiErr.Attempts)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var rl *RateLimitExceededError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 3, rl.Attempts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAmazon(t)
			var calls atomic.Int32
			f.handle("GET /v2/profiles", func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})

			c := f.client("client-a")
			_, err := c.ListProfiles(context.Background(), ProfileFilter{})
			tt.check(t, err)
			assert.True(t, IsRetryable(err))
			assert.Equal(t, int32(3), calls.Load(), "max_retries=2 allows three attempts and no more")
		})
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	f := newFakeAmazon(t)
	var calls atomic.Int32
	f.handle("GET /sp/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "NOT_FOUND"})
	})

	c := f.client("client-a")
	_, err := c.GetCampaign(context.Background(), "999")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "/sp/campaigns/999", apiErr.Path)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, IsRetryable(err))
}

func TestRejectedCredentialsAreAuthError(t *testing.T) {
	f := newFakeAmazon(t)
	f.lwaReject = "invalid_grant"
	var apiCalls atomic.Int32
	f.handle("/", func(w http.ResponseWriter, r *http.Request) { apiCalls.Add(1) })

	c := f.client("client-a")
	_, err := c.ListProfiles(context.Background(), ProfileFilter{})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid_grant", authErr.Code)
	assert.Equal(t, int32(0), apiCalls.Load())
}

func TestTimeoutIsTimeoutError(t *testing.T) {
	f := newFakeAmazon(t)
	f.handle("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	cfg := f.config("client-a")
	cfg.Timeout = 100 * time.Millisecond
	c, err := New(nil, cfg)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), &Request{Path: "/slow"})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

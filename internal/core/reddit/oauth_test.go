package reddit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karmalens/karmalens/internal/core"
)

func newTokenServer(t *testing.T, exchanges *int32, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(exchanges, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		id, secret, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "id", id)
		require.Equal(t, "secret", secret)

		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600,"scope":"*"}`))
	}))
}

func TestTokenCacheReusesToken(t *testing.T) {
	var exchanges int32
	server := newTokenServer(t, &exchanges, 0)
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := &TokenCache{
		Client:       server.Client(),
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Clock:        func() time.Time { return now },
	}

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	require.Equal(t, "tok-123", first)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
	require.Equal(t, now.Add(54*time.Minute), cache.ExpiresAt())
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	var exchanges int32
	server := newTokenServer(t, &exchanges, 0)
	defer server.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := &TokenCache{
		Client:       server.Client(),
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Clock:        func() time.Time { return now },
	}

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	now = now.Add(55 * time.Minute)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&exchanges))

	cache.Invalidate()
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&exchanges))
}

func TestTokenCacheSingleFlight(t *testing.T) {
	var exchanges int32
	server := newTokenServer(t, &exchanges, 50*time.Millisecond)
	defer server.Close()

	cache := &TokenCache{
		Client:       server.Client(),
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := cache.Token(context.Background())
			if err == nil {
				tokens[i] = token
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
	for _, token := range tokens {
		require.Equal(t, "tok-123", token)
	}
}

func TestTokenCacheWaiterSurvivesOtherCallerDeadline(t *testing.T) {
	var exchanges int32
	server := newTokenServer(t, &exchanges, 200*time.Millisecond)
	defer server.Close()

	cache := &TokenCache{
		Client:       server.Client(),
		TokenURL:     server.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var shortErr, longErr error
	var longToken string

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, shortErr = cache.Token(shortCtx)
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		longToken, longErr = cache.Token(context.Background())
	}()
	wg.Wait()

	require.ErrorIs(t, shortErr, context.DeadlineExceeded)
	require.NoError(t, longErr)
	require.Equal(t, "tok-123", longToken)
	require.Equal(t, int32(1), atomic.LoadInt32(&exchanges))

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
	require.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
}

func TestTokenCacheExchangeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized","error":401}`))
	}))
	defer server.Close()

	cache := &TokenCache{Client: server.Client(), TokenURL: server.URL, ClientID: "id", ClientSecret: "bad"}

	_, err := cache.Token(context.Background())
	require.Error(t, err)

	var authErr *core.AuthError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.Contains(t, authErr.Body, "Unauthorized")
	require.Equal(t, core.ErrorAuthFailure, core.Classify(err, "").Type)
}

func TestOAuthClientFetchUserData(t *testing.T) {
	var exchanges int32
	tokenServer := newTokenServer(t, &exchanges, 0)
	defer tokenServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/alice/about", r.URL.Path)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"kind":"t2","data":{"name":"alice","link_karma":10,"comment_karma":32}}`))
	}))
	defer api.Close()

	client := &OAuthClient{
		Client:  api.Client(),
		BaseURL: api.URL,
		Limiter: testLimiter(),
		Retrier: testRetrier(2),
		Tokens: &TokenCache{
			Client:       tokenServer.Client(),
			TokenURL:     tokenServer.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		},
	}

	stat, err := client.FetchUserData(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(42), stat.Karma)
	require.Equal(t, int64(32), stat.CommentCount)

	_, err = client.FetchUserData(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
}

func TestOAuthClientUnauthorizedRefreshesToken(t *testing.T) {
	var exchanges int32
	tokenServer := newTokenServer(t, &exchanges, 0)
	defer tokenServer.Close()

	var calls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"name":"alice","link_karma":1,"comment_karma":1}}`))
	}))
	defer api.Close()

	client := &OAuthClient{
		Client:  api.Client(),
		BaseURL: api.URL,
		Retrier: testRetrier(2),
		Tokens: &TokenCache{
			Client:       tokenServer.Client(),
			TokenURL:     tokenServer.URL,
			ClientID:     "id",
			ClientSecret: "secret",
		},
	}

	stat, err := client.FetchUserData(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), stat.Karma)
	require.Equal(t, int32(2), atomic.LoadInt32(&exchanges))
}

func TestOAuthClientNotFound(t *testing.T) {
	var exchanges int32
	tokenServer := newTokenServer(t, &exchanges, 0)
	defer tokenServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer api.Close()

	client := &OAuthClient{
		Client:  api.Client(),
		BaseURL: api.URL,
		Retrier: testRetrier(3),
		Tokens:  &TokenCache{Client: tokenServer.Client(), TokenURL: tokenServer.URL, ClientID: "id", ClientSecret: "secret"},
	}

	exists, err := client.UserExists(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, exists)
}

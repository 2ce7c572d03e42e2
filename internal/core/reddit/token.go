package reddit

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

	"golang.org/x/sync/singleflight"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/metrics"
)

// tokenLifetimeRatio refreshes tokens before Reddit expires them.
const tokenLifetimeRatio = 0.9

// TokenCache owns one client-credentials access token. Concurrent callers
// that find the cache cold share a single exchange.
type TokenCache struct {
	Client       *http.Client
	TokenURL     string
	ClientID     string
	ClientSecret string
	UserAgent    string
	Clock        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   float64 `json:"expires_in"`
	Scope       string  `json:"scope"`
}

// Token returns a valid bearer token, exchanging credentials when needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if c == nil {
		return "", &core.AuthError{Err: errors.New("token cache is not configured")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if token, ok := c.cached(); ok {
		return token, nil
	}

	// The shared exchange ignores caller cancellation and is bounded by the
	// client timeout instead. Each caller still honors its own ctx.
	flight := c.group.DoChan("token", func() (any, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.exchangeTimeout())
		defer cancel()

		token, lifetime, err := c.exchange(exchangeCtx)
		metrics.RecordTokenRefresh(err == nil)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(time.Duration(float64(lifetime) * tokenLifetimeRatio))
		c.mu.Unlock()
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *TokenCache) exchangeTimeout() time.Duration {
	if c.Client != nil && c.Client.Timeout > 0 {
		return c.Client.Timeout
	}
	return defaultTimeout
}

// Invalidate drops the cached token so the next call re-authenticates.
func (c *TokenCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// ExpiresAt returns when the cached token stops being used.
func (c *TokenCache) ExpiresAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *TokenCache) exchange(ctx context.Context) (string, time.Duration, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return "", 0, &core.AuthError{Err: errors.New("client id and secret are required")}
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent())

	client := c.Client
	if client == nil {
		client = defaultHTTPClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	metrics.RecordRedditRequest(req.URL.Host, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", 0, &core.AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, &core.AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if payload.AccessToken == "" {
		return "", 0, &core.AuthError{StatusCode: resp.StatusCode, Err: errors.New("token response missing access_token")}
	}

	return payload.AccessToken, time.Duration(payload.ExpiresIn * float64(time.Second)), nil
}

func (c *TokenCache) tokenURL() string {
	if strings.TrimSpace(c.TokenURL) != "" {
		return c.TokenURL
	}
	return DefaultTokenURL
}

func (c *TokenCache) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

func (c *TokenCache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

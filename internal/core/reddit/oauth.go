package reddit

import (
	"context"
	"errors"
	"net/http"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/core/engine"
)

// OAuthClient reads the authenticated about endpoint with a bearer token.
type OAuthClient struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
	Tokens    *TokenCache
	Limiter   *engine.SlidingWindowLimiter
	Retrier   *engine.Retrier
}

// FetchUserData fetches karma for username.
func (c *OAuthClient) FetchUserData(ctx context.Context, username string) (*core.UserStat, error) {
	if c == nil || c.Tokens == nil {
		return nil, errors.New("oauth client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	reqURL := userURL(parseBaseURL(c.BaseURL, DefaultOAuthBaseURL), name, "/about")

	var stat *core.UserStat
	err = c.Retrier.Do(ctx, name, func(ctx context.Context) error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.Tokens.Token(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", c.userAgent())

		result, err := doAbout(c.httpClient(), req, c.Limiter, name)
		if err != nil {
			var httpErr *core.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
				c.Tokens.Invalidate()
			}
			return err
		}
		stat = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stat, nil
}

// UserExists reports false only for a definitive not-found.
func (c *OAuthClient) UserExists(ctx context.Context, username string) (bool, error) {
	return userExists(ctx, c, username)
}

func (c *OAuthClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultHTTPClient()
}

func (c *OAuthClient) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	if c.Tokens != nil && c.Tokens.UserAgent != "" {
		return c.Tokens.UserAgent
	}
	return DefaultUserAgent
}

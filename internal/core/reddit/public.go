package reddit

import (
	"context"
	"net/http"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/core/engine"
)

// PublicClient reads the unauthenticated about.json endpoint.
type PublicClient struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
	Limiter   *engine.SlidingWindowLimiter
	Retrier   *engine.Retrier
}

// FetchUserData fetches karma for username.
func (c *PublicClient) FetchUserData(ctx context.Context, username string) (*core.UserStat, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := requireUsername(username)
	if err != nil {
		return nil, err
	}

	reqURL := userURL(parseBaseURL(c.BaseURL, DefaultBaseURL), name, "/about.json")

	var stat *core.UserStat
	err = c.Retrier.Do(ctx, name, func(ctx context.Context) error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent())

		result, err := doAbout(c.httpClient(), req, c.Limiter, name)
		if err != nil {
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
func (c *PublicClient) UserExists(ctx context.Context, username string) (bool, error) {
	return userExists(ctx, c, username)
}

func (c *PublicClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultHTTPClient()
}

func (c *PublicClient) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

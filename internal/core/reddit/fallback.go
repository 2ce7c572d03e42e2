package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
)

// DefaultFallbackEndpoints are tried in order after the primary client fails.
var DefaultFallbackEndpoints = []string{
	"https://www.reddit.com",
	"https://old.reddit.com",
	"https://api.reddit.com",
}

// ErrAllEndpointsFailed is returned when no fallback endpoint produced data.
var ErrAllEndpointsFailed = errors.New("all endpoints blocked or failed")

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var browserHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
	"Sec-Fetch-Dest":  "empty",
	"Sec-Fetch-Mode":  "cors",
	"Sec-Fetch-Site":  "same-origin",
}

// Resolver wraps a primary client with sequential fallback endpoints.
type Resolver struct {
	Primary   Client
	Endpoints []string
	Client    *http.Client
	UserAgent string
	Pacer     *rate.Limiter
	Log       *collectlog.Log

	// AssumeExistsOnBlock lets UserExists answer true for a syntactically
	// valid username when every endpoint refused the request.
	AssumeExistsOnBlock bool
}

// FetchUserData implements Client using FetchWithFallback.
func (r *Resolver) FetchUserData(ctx context.Context, username string) (*core.UserStat, error) {
	return r.FetchWithFallback(ctx, username)
}

// FetchWithFallback tries the primary client, then each endpoint in order.
// A not-found answer from any source is final.
func (r *Resolver) FetchWithFallback(ctx context.Context, username string) (*core.UserStat, error) {
	stat, _, err := r.resolve(ctx, username)
	return stat, err
}

// UserExists reports false only for a definitive not-found. When every
// endpoint blocked the request and AssumeExistsOnBlock is set, the username
// format decides.
func (r *Resolver) UserExists(ctx context.Context, username string) (bool, error) {
	_, blocked, err := r.resolve(ctx, username)
	if err == nil {
		return true, nil
	}
	if core.Classify(err, username).Type == core.ErrorUserNotFound {
		return false, nil
	}
	if blocked && r.AssumeExistsOnBlock && errors.Is(err, ErrAllEndpointsFailed) {
		assumed := AssumeUserExists(username)
		r.Log.Warn("All endpoints blocked; assuming user existence from username format", map[string]any{
			"username": username,
			"assumed":  assumed,
		})
		return assumed, nil
	}
	return false, err
}

// resolve returns the stat, whether every endpoint was blocked, and the error.
func (r *Resolver) resolve(ctx context.Context, username string) (*core.UserStat, bool, error) {
	if r == nil {
		return nil, false, errors.New("resolver is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := requireUsername(username)
	if err != nil {
		return nil, false, err
	}

	if r.Primary != nil {
		stat, err := r.Primary.FetchUserData(ctx, name)
		if err == nil {
			return stat, false, nil
		}
		classified := core.Classify(err, name)
		if classified.Type == core.ErrorUserNotFound {
			return nil, false, classified
		}
		r.Log.Warn("Primary client failed, trying fallback endpoints", map[string]any{
			"username":   name,
			"error_type": string(classified.Type),
			"error":      err.Error(),
		})
	}

	endpoints := r.endpoints()
	blocked := 0
	var lastErr error
	for _, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if r.Pacer != nil {
			if err := r.Pacer.Wait(ctx); err != nil {
				return nil, false, err
			}
		}

		stat, err := r.fetchEndpoint(ctx, endpoint, name)
		if err == nil {
			r.Log.Info("Fallback endpoint succeeded", map[string]any{"username": name, "endpoint": endpoint})
			return stat, false, nil
		}

		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) {
			switch httpErr.StatusCode {
			case http.StatusNotFound:
				return nil, false, core.Classify(err, name)
			case http.StatusForbidden:
				blocked++
			}
		}
		r.Log.Debug("Fallback endpoint failed", map[string]any{
			"username": name,
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		lastErr = err
	}

	allBlocked := len(endpoints) > 0 && blocked == len(endpoints)
	cause := fmt.Errorf("fetch %s: %w", name, ErrAllEndpointsFailed)
	if lastErr != nil {
		cause = fmt.Errorf("fetch %s: %w (last error: %v)", name, ErrAllEndpointsFailed, lastErr)
	}
	return nil, allBlocked, core.NewClassifiedError(core.ErrorAPIUnavailable, name, 0, cause)
}

func (r *Resolver) fetchEndpoint(ctx context.Context, endpoint, username string) (*core.UserStat, error) {
	reqURL := userURL(parseBaseURL(endpoint, DefaultBaseURL), username, "/about.json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", r.userAgent())

	client := r.Client
	if client == nil {
		client = defaultHTTPClient()
	}
	return doAbout(client, req, nil, username)
}

func (r *Resolver) endpoints() []string {
	out := make([]string, 0, len(r.Endpoints))
	for _, endpoint := range r.Endpoints {
		if value := strings.TrimSpace(endpoint); value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return DefaultFallbackEndpoints
	}
	return out
}

func (r *Resolver) userAgent() string {
	if r.UserAgent != "" {
		return r.UserAgent
	}
	return browserUserAgent
}

// AssumeUserExists is a last-resort heuristic used only when Reddit blocks
// every lookup. It never produces karma data.
func AssumeUserExists(username string) bool {
	return ValidUsername(username)
}

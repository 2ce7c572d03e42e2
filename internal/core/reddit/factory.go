package reddit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core/engine"
)

// Client modes.
const (
	ModeAuto   = "auto"
	ModePublic = "public"
	ModeOAuth  = "oauth"
	ModeMock   = "mock"
)

// FallbackOptions configures the Resolver wrapper.
type FallbackOptions struct {
	Enabled             bool
	Endpoints           []string
	RequestsPerSecond   float64
	Burst               int
	AssumeExistsOnBlock bool
}

// Options configures New. Each built client owns its limiter and token cache.
type Options struct {
	Mode         string
	UserAgent    string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	BaseURL      string
	OAuthBaseURL string
	TokenURL     string
	RateLimit    engine.RateLimitConfig
	Retry        engine.RetryPolicy
	Fallback     FallbackOptions
	Log          *collectlog.Log
	HTTPClient   *http.Client
}

// New builds the client selected by opts.Mode. "auto" picks OAuth when
// credentials are present and the public endpoint otherwise.
func New(opts Options) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = ModeAuto
	}
	hasCredentials := strings.TrimSpace(opts.ClientID) != "" && strings.TrimSpace(opts.ClientSecret) != ""
	if mode == ModeAuto {
		mode = ModePublic
		if hasCredentials {
			mode = ModeOAuth
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := engine.NewSlidingWindowLimiter(opts.RateLimit)
	retrier := engine.NewRetrier(opts.Retry, opts.Log)

	var primary Client
	switch mode {
	case ModeMock:
		return NewMockClient(), nil
	case ModePublic:
		primary = &PublicClient{
			Client:    httpClient,
			BaseURL:   opts.BaseURL,
			UserAgent: opts.UserAgent,
			Limiter:   limiter,
			Retrier:   retrier,
		}
	case ModeOAuth:
		if !hasCredentials {
			return nil, fmt.Errorf("reddit client_id and client_secret are required for oauth mode")
		}
		primary = &OAuthClient{
			Client:    httpClient,
			BaseURL:   opts.OAuthBaseURL,
			UserAgent: opts.UserAgent,
			Limiter:   limiter,
			Retrier:   retrier,
			Tokens: &TokenCache{
				Client:       httpClient,
				TokenURL:     opts.TokenURL,
				ClientID:     opts.ClientID,
				ClientSecret: opts.ClientSecret,
				UserAgent:    opts.UserAgent,
			},
		}
	default:
		return nil, fmt.Errorf("unknown reddit mode: %s (use 'auto', 'public', 'oauth', or 'mock')", mode)
	}

	if !opts.Fallback.Enabled {
		return primary, nil
	}
	return NewResolver(primary, opts.Fallback, httpClient, opts.Log), nil
}

// NewResolver wraps primary with fallback endpoints paced by a token bucket.
func NewResolver(primary Client, opts FallbackOptions, httpClient *http.Client, log *collectlog.Log) *Resolver {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 0.5
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Resolver{
		Primary:             primary,
		Endpoints:           opts.Endpoints,
		Client:              httpClient,
		Pacer:               rate.NewLimiter(rate.Limit(rps), burst),
		Log:                 log,
		AssumeExistsOnBlock: opts.AssumeExistsOnBlock,
	}
}

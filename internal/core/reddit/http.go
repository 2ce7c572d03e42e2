package reddit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/core/engine"
	"github.com/karmalens/karmalens/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

func parseBaseURL(value, fallback string) *url.URL {
	if strings.TrimSpace(value) != "" {
		if parsed, err := url.Parse(strings.TrimRight(value, "/")); err == nil {
			return parsed
		}
	}
	parsed, _ := url.Parse(fallback)
	return parsed
}

func userURL(base *url.URL, username, suffix string) string {
	return base.ResolveReference(&url.URL{Path: base.Path + "/user/" + url.PathEscape(username) + suffix}).String()
}

// doAbout sends req and decodes an about payload. Non-200 responses become
// *core.HTTPError; a 429 pushes Retry-After into the limiter.
func doAbout(client *http.Client, req *http.Request, limiter *engine.SlidingWindowLimiter, username string) (*core.UserStat, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	metrics.RecordRedditRequest(req.URL.Host, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			wait, _ := retryAfterHeader(resp)
			limiter.Backoff(wait)
		}
		return nil, httpError(resp)
	}

	return parseAbout(resp.Body, username)
}

func httpError(resp *http.Response) *core.HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &core.HTTPError{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL.String(),
		Body:       strings.TrimSpace(string(body)),
	}
}

type aboutPayload struct {
	Data *struct {
		Name         string `json:"name"`
		LinkKarma    any    `json:"link_karma"`
		CommentKarma any    `json:"comment_karma"`
	} `json:"data"`
}

// parseAbout decodes the about schema. Missing data or non-numeric karma is
// invalid data and is not retried.
func parseAbout(body io.Reader, username string) (*core.UserStat, error) {
	decoder := json.NewDecoder(body)
	decoder.UseNumber()

	var payload aboutPayload
	if err := decoder.Decode(&payload); err != nil {
		return nil, invalidData(username, fmt.Errorf("invalid response structure: %w", err))
	}
	if payload.Data == nil {
		return nil, invalidData(username, fmt.Errorf("invalid response structure: missing data"))
	}

	linkKarma, ok := karmaValue(payload.Data.LinkKarma)
	if !ok {
		return nil, invalidData(username, fmt.Errorf("invalid link_karma value %v", payload.Data.LinkKarma))
	}
	commentKarma, ok := karmaValue(payload.Data.CommentKarma)
	if !ok {
		return nil, invalidData(username, fmt.Errorf("invalid comment_karma value %v", payload.Data.CommentKarma))
	}

	name := strings.TrimSpace(payload.Data.Name)
	if name == "" {
		name = username
	}
	return core.NewUserStat(name, linkKarma, commentKarma), nil
}

func karmaValue(raw any) (int64, bool) {
	number, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	if value, err := number.Int64(); err == nil {
		return value, true
	}
	if value, err := strconv.ParseFloat(number.String(), 64); err == nil {
		return int64(value), true
	}
	return 0, false
}

func invalidData(username string, err error) error {
	return core.NewClassifiedError(core.ErrorInvalidData, username, 0, err)
}

func retryAfterHeader(resp *http.Response) (time.Duration, map[string]any) {
	if resp == nil || resp.Header == nil {
		return 0, nil
	}

	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0, nil
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds, map[string]any{"retry_after": retry}
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed), map[string]any{"retry_after": retry}
	}

	return 0, map[string]any{"retry_after": retry}
}

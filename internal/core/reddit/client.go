package reddit

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/karmalens/karmalens/internal/core"
)

// Default endpoints.
const (
	DefaultBaseURL      = "https://www.reddit.com"
	DefaultOAuthBaseURL = "https://oauth.reddit.com"
	DefaultTokenURL     = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent    = "karmalens/0.1 (karma tracker)"
)

// Client fetches public statistics for a Reddit user.
type Client interface {
	FetchUserData(ctx context.Context, username string) (*core.UserStat, error)
	UserExists(ctx context.Context, username string) (bool, error)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidUsername reports whether name satisfies Reddit's username rules.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(NormalizeUsername(name))
}

// NormalizeUsername trims whitespace and a leading "u/" or "/u/" prefix.
func NormalizeUsername(name string) string {
	value := strings.TrimSpace(name)
	value = strings.TrimPrefix(value, "/")
	if len(value) > 2 && strings.EqualFold(value[:2], "u/") {
		value = value[2:]
	}
	return value
}

type fetcher interface {
	FetchUserData(ctx context.Context, username string) (*core.UserStat, error)
}

// userExists is false only when the failure is classified as not found.
// Every other failure is returned so transient errors stay visible.
func userExists(ctx context.Context, f fetcher, username string) (bool, error) {
	_, err := f.FetchUserData(ctx, username)
	if err == nil {
		return true, nil
	}
	if core.Classify(err, username).Type == core.ErrorUserNotFound {
		return false, nil
	}
	return false, err
}

var errUsernameRequired = errors.New("username is required")

func requireUsername(name string) (string, error) {
	value := NormalizeUsername(name)
	if value == "" {
		return "", errUsernameRequired
	}
	return value, nil
}

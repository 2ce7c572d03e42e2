package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{404, ErrorUserNotFound},
		{403, ErrorUserSuspended},
		{429, ErrorRateLimited},
		{401, ErrorAuthFailure},
		{500, ErrorAPIUnavailable},
		{503, ErrorAPIUnavailable},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			got := Classify(fmt.Errorf("fetch: %w", &HTTPError{StatusCode: tc.status}), "alice")
			require.Equal(t, tc.want, got.Type)
			require.Equal(t, tc.status, got.StatusCode)
			require.Equal(t, "alice", got.Username)
			require.Equal(t, tc.want.Retryable(), got.Retryable)
		})
	}
}

func TestClassifyUnmappedStatusIgnoresURL(t *testing.T) {
	cases := []struct {
		name     string
		username string
		status   int
		body     string
		want     ErrorType
	}{
		{"sql in username", "mysqlfan", 400, "", ErrorUnknown},
		{"invalid in username", "invalid_guy", 409, "", ErrorUnknown},
		{"body still classified", "alice", 400, `{"reason":"invalid structure"}`, ErrorInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			httpErr := &HTTPError{
				StatusCode: tc.status,
				URL:        "https://oauth.reddit.com/user/" + tc.username + "/about",
				Body:       tc.body,
			}
			got := Classify(fmt.Errorf("fetch %s: %w", tc.username, httpErr), tc.username)
			require.Equal(t, tc.want, got.Type)
			require.Equal(t, tc.status, got.StatusCode)
		})
	}
}

func TestClassifyCoversEveryCategory(t *testing.T) {
	inputs := map[ErrorType]error{
		ErrorUserNotFound:   &HTTPError{StatusCode: 404},
		ErrorUserSuspended:  errors.New("account suspended"),
		ErrorRateLimited:    errors.New("Too Many Requests"),
		ErrorAPIUnavailable: &HTTPError{StatusCode: 502},
		ErrorNetwork:        timeoutErr{},
		ErrorInvalidData:    errors.New("invalid response structure"),
		ErrorDatabase:       errors.New("database insert snapshot: locked"),
		ErrorAuthFailure:    &AuthError{StatusCode: 401, Body: "bad creds"},
		ErrorUnknown:        errors.New("something odd"),
	}
	require.Len(t, inputs, len(ErrorTypes))

	for _, errType := range ErrorTypes {
		got := Classify(inputs[errType], "bob")
		require.Equal(t, errType, got.Type, "input %v", inputs[errType])
	}
}

func TestClassifyRetryability(t *testing.T) {
	for _, errType := range ErrorTypes {
		switch errType {
		case ErrorUserNotFound, ErrorUserSuspended, ErrorInvalidData:
			require.False(t, errType.Retryable(), errType)
		default:
			require.True(t, errType.Retryable(), errType)
		}
	}
}

func TestClassifyNilAndDeadline(t *testing.T) {
	got := Classify(nil, "")
	require.Equal(t, ErrorUnknown, got.Type)
	require.Equal(t, "An unknown error occurred", got.Message)

	got = Classify(fmt.Errorf("fetch: %w", context.DeadlineExceeded), "alice")
	require.Equal(t, ErrorNetwork, got.Type)
	require.True(t, got.Retryable)
}

func TestClassifyKeepsExistingClassification(t *testing.T) {
	original := NewClassifiedError(ErrorUserSuspended, "carol", 403, errors.New("forbidden"))
	got := Classify(fmt.Errorf("wrapped: %w", original), "someone-else")
	require.Same(t, original, got)
}

func TestClassifyMessageHeuristics(t *testing.T) {
	require.Equal(t, ErrorUserNotFound, ClassifyMessage("Service Unavailable"))
	require.Equal(t, ErrorUserSuspended, ClassifyMessage("profile is private"))
	require.Equal(t, ErrorRateLimited, ClassifyMessage("hit the rate limit"))
	require.Equal(t, ErrorAuthFailure, ClassifyMessage("401 Unauthorized"))
	require.Equal(t, ErrorDatabase, ClassifyMessage("libsql: no such table"))
	require.Equal(t, ErrorNetwork, ClassifyMessage("connection reset by peer"))
	require.Equal(t, ErrorUnknown, ClassifyMessage(""))
}

func TestUserMessages(t *testing.T) {
	require.Equal(t, "Reddit user not found. Please check the username and try again.", UserMessage(ErrorUserNotFound, "x"))
	require.Equal(t, "This Reddit account is suspended or private.", UserMessage(ErrorUserSuspended, ""))
	require.Equal(t, "boom", UserMessage(ErrorUnknown, "boom"))
	require.Equal(t, "An unknown error occurred", UserMessage(ErrorUnknown, " "))

	for _, errType := range ErrorTypes {
		require.NotEmpty(t, UserMessage(errType, "fallback"))
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	require.Equal(t, 404, ErrorUserNotFound.HTTPStatus())
	require.Equal(t, 429, ErrorRateLimited.HTTPStatus())
	require.Equal(t, 503, ErrorNetwork.HTTPStatus())
	require.Equal(t, 500, ErrorDatabase.HTTPStatus())
	require.Equal(t, 500, ErrorUnknown.HTTPStatus())
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	cause := &HTTPError{StatusCode: 404, URL: "https://example.test/user/x/about.json"}
	got := Classify(cause, "x")
	require.ErrorIs(t, got, cause)
	require.Contains(t, got.Error(), "404")
}

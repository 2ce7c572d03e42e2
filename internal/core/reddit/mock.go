package reddit

import (
	"context"
	"hash/fnv"

	"github.com/karmalens/karmalens/internal/core"
)

// MockUserStat fabricates deterministic stats for username. It must only be
// reached through an explicitly configured mock client.
func MockUserStat(username string) *core.UserStat {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizeUsername(username)))
	sum := h.Sum64()

	linkKarma := int64(sum % 50000)
	commentKarma := int64((sum >> 20) % 100000)
	return core.NewUserStat(NormalizeUsername(username), linkKarma, commentKarma)
}

// MockClient returns fabricated stats without touching the network.
type MockClient struct {
	// Missing lists usernames reported as not found.
	Missing map[string]bool
}

// NewMockClient returns a MockClient that knows every user.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// FetchUserData returns deterministic stats derived from the username.
func (m *MockClient) FetchUserData(ctx context.Context, username string) (*core.UserStat, error) {
	name, err := requireUsername(username)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Missing[name] {
		return nil, core.NewClassifiedError(core.ErrorUserNotFound, name, 404, &core.HTTPError{StatusCode: 404})
	}
	return MockUserStat(name), nil
}

// UserExists reports whether FetchUserData finds username.
func (m *MockClient) UserExists(ctx context.Context, username string) (bool, error) {
	return userExists(ctx, m, username)
}

package core

import "time"

// UserStat is the normalized result of a Reddit user lookup.
//
// PostCount and CommentCount are derived from karma (link_karma and
// comment_karma respectively), not from real content tallies. Charts built on
// stored snapshots are calibrated to this definition.
type UserStat struct {
	Username     string `json:"username" yaml:"username"`
	Karma        int64  `json:"karma" yaml:"karma"`
	PostCount    int64  `json:"post_count" yaml:"post_count"`
	CommentCount int64  `json:"comment_count" yaml:"comment_count"`
	LinkKarma    int64  `json:"link_karma" yaml:"link_karma"`
	CommentKarma int64  `json:"comment_karma" yaml:"comment_karma"`
}

// NewUserStat builds a UserStat from raw karma values.
func NewUserStat(username string, linkKarma, commentKarma int64) *UserStat {
	return &UserStat{
		Username:     username,
		Karma:        linkKarma + commentKarma,
		PostCount:    linkKarma,
		CommentCount: commentKarma,
		LinkKarma:    linkKarma,
		CommentKarma: commentKarma,
	}
}

// Snapshot is one point-in-time record of a user's statistics.
type Snapshot struct {
	ID           int64     `json:"id" yaml:"id"`
	Username     string    `json:"username" yaml:"username"`
	Karma        int64     `json:"karma" yaml:"karma"`
	PostCount    int64     `json:"post_count" yaml:"post_count"`
	CommentCount int64     `json:"comment_count" yaml:"comment_count"`
	CollectedAt  time.Time `json:"collected_at" yaml:"collected_at"`
}

// TrackedUser is a username scheduled for periodic collection.
type TrackedUser struct {
	Username string    `json:"username" yaml:"username"`
	AddedAt  time.Time `json:"added_at" yaml:"added_at"`
}

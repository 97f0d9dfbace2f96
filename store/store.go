// Package store defines the durable records of the server list and the
// operations the sync and vote paths need from a storage backend.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Store is implemented by every durable backend. All methods must be safe for
// concurrent use. Slugs and usernames are matched by their folded identity
// (see Fold).
type Store interface {
	// ListEnabledServers returns every server record that is not disabled.
	ListEnabledServers(ctx context.Context) ([]ServerRecord, error)

	// FindServer resolves a non-disabled server by slug. It returns
	// ErrNotFound when there is no such server.
	FindServer(ctx context.Context, slug string) (*ServerRecord, error)

	// PutServer creates or replaces a server record. The vote counter and
	// creation time of an existing record are preserved.
	PutServer(ctx context.Context, rec ServerRecord) error

	// UpdateServerStatus writes the synced status fields of a server.
	UpdateServerStatus(ctx context.Context, slug string, upd StatusUpdate) error

	// IncrementVotes atomically adds one to the vote counter and returns the
	// new value.
	IncrementVotes(ctx context.Context, slug string) (int64, error)

	// ClaimCooldown atomically records a vote of username for slug at now
	// unless a previous vote happened less than window ago.
	ClaimCooldown(ctx context.Context, username, slug string, now time.Time, window time.Duration) (Claim, error)

	GetCooldown(ctx context.Context, username, slug string) (*CooldownRecord, error)

	// EnsureUser creates a minimal user record unless one already exists.
	EnsureUser(ctx context.Context, username string, now time.Time) (bool, error)

	AppendVoteEvent(ctx context.Context, evt VoteEvent) error

	// ListVoteEvents returns up to limit events of a server, newest first.
	ListVoteEvents(ctx context.Context, slug string, limit int) ([]VoteEvent, error)

	Close() error
}

// Claim is the result of ClaimCooldown.
type Claim struct {
	// Claimed is true when the vote was recorded.
	Claimed bool

	// LastVotedAt is the time of the vote that blocks this one when Claimed
	// is false, and now otherwise.
	LastVotedAt time.Time
}

type StatusUpdate struct {
	Online         bool
	Players        int
	MaxPlayers     int
	LastStatusSync time.Time
}

// Package vote gates votes for listed servers: one vote per voter and server
// per cooldown window, with an optional secret that makes the vote eligible
// for an in-game reward.
package vote

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minelist/status-sync/metrics"
	"github.com/minelist/status-sync/notify"
	"github.com/minelist/status-sync/store"
)

const (
	DefaultCooldown         = 12 * time.Hour
	DefaultBroadcastTimeout = 5 * time.Second

	maxUsernameLength = 32
)

var (
	ErrInvalidUsername = errors.New("invalid username")
)

// Store is the part of the durable storage the guard relies on.
type Store interface {
	FindServer(ctx context.Context, slug string) (*store.ServerRecord, error)
	IncrementVotes(ctx context.Context, slug string) (int64, error)
	ClaimCooldown(ctx context.Context, username, slug string, now time.Time, window time.Duration) (store.Claim, error)
	EnsureUser(ctx context.Context, username string, now time.Time) (bool, error)
	AppendVoteEvent(ctx context.Context, evt store.VoteEvent) error
}

type Options struct {
	DefaultCooldown  time.Duration
	BroadcastTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

type Request struct {
	Username   string `json:"username"`
	ServerSlug string `json:"serverSlug"`

	// RewardSecret is empty for votes that do not ask for a reward.
	RewardSecret string `json:"secret,omitempty"`
}

type Guard struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time

	defaultCooldown  time.Duration
	broadcastTimeout time.Duration
}

func New(st Store, notifier notify.Notifier, opts Options) *Guard {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if opts.DefaultCooldown <= 0 {
		opts.DefaultCooldown = DefaultCooldown
	}
	if opts.BroadcastTimeout <= 0 {
		opts.BroadcastTimeout = DefaultBroadcastTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Guard{
		store:            st,
		notifier:         notifier,
		logger:           opts.Logger,
		now:              opts.Now,
		defaultCooldown:  opts.DefaultCooldown,
		broadcastTimeout: opts.BroadcastTimeout,
	}
}

// TryVote records a vote unless one of the gates rejects it. Rejections are
// reported through the outcome; an error means the vote could not be
// processed and was not recorded.
func (g *Guard) TryVote(ctx context.Context, req Request) (Outcome, error) {
	outcome, err := g.tryVote(ctx, req)
	if err == nil {
		metrics.VotesCount.Add(ctx, 1, metrics.With("outcome", outcome.Status.String()))
	} else {
		metrics.VotesCount.Add(ctx, 1, metrics.With("outcome", "error"))
	}
	return outcome, err
}

func (g *Guard) tryVote(ctx context.Context, req Request) (Outcome, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return Outcome{}, fmt.Errorf("%w: '%s'",
			ErrInvalidUsername, req.Username,
		)
	}

	srv, err := g.store.FindServer(ctx, req.ServerSlug)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Status: RejectedUnknownServer}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve server '%s': %w",
			req.ServerSlug, err,
		)
	}
	slug := srv.Slug

	l := g.logger.With(
		zap.String("server_slug", slug),
		zap.String("username", username),
	)

	window := srv.VoteCooldown(g.defaultCooldown)

	rewardEligible := false
	if req.RewardSecret != "" {
		if srv.Secret == "" || subtle.ConstantTimeCompare([]byte(req.RewardSecret), []byte(srv.Secret)) != 1 {
			return Outcome{Status: RejectedInvalidSecret, ServerSlug: slug}, nil
		}
		if !srv.VotingRewardEnabled {
			return Outcome{Status: RejectedRewardsDisabled, ServerSlug: slug}, nil
		}
		rewardEligible = true
	}

	now := g.now()
	claim, err := g.store.ClaimCooldown(ctx, username, slug, now, window)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record vote cooldown: %w", err)
	}
	if !claim.Claimed {
		remaining := window - now.Sub(claim.LastVotedAt)
		if remaining > window {
			remaining = window
		}
		return Outcome{
			Status:     RejectedCooldownActive,
			ServerSlug: slug,
			Remaining:  remaining,
		}, nil
	}

	// From here on the vote is recorded: the cooldown is the authoritative
	// gate, the follow-up writes are best effort.

	if _, err := g.store.IncrementVotes(ctx, slug); err != nil {
		g.anomaly(ctx, l, "increment_votes", err)
	}

	if _, err := g.store.EnsureUser(ctx, username, now); err != nil {
		g.anomaly(ctx, l, "ensure_user", err)
	}

	evt := store.VoteEvent{
		ID:             uuid.NewString(),
		Username:       username,
		ServerSlug:     slug,
		Timestamp:      now.UTC(),
		RewardEligible: rewardEligible,
	}
	if err := g.store.AppendVoteEvent(ctx, evt); err != nil {
		g.anomaly(ctx, l, "append_vote_event", err)
	}

	outcome := Outcome{Status: Accepted, ServerSlug: slug}
	if rewardEligible {
		outcome.RewardSent = g.broadcast(ctx, l, notify.Event{
			ServerSlug: slug,
			Username:   username,
			RewardSent: true,
			Timestamp:  now.UTC(),
		})
	}

	l.Debug("Vote accepted",
		zap.Bool("reward_sent", outcome.RewardSent),
	)

	return outcome, nil
}

func (g *Guard) anomaly(ctx context.Context, l *zap.Logger, step string, err error) {
	metrics.VoteAnomaliesCount.Add(ctx, 1, metrics.With("step", step))
	l.Error("Vote accepted but a follow-up write failed",
		zap.String("step", step),
		zap.Error(err),
	)
}

func (g *Guard) broadcast(ctx context.Context, l *zap.Logger, evt notify.Event) (sent bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.broadcastTimeout)
	defer cancel()

	defer func() {
		if msg := recover(); msg != nil {
			metrics.BroadcastsCount.Add(ctx, 1, metrics.With("result", "error"))
			l.Error("Notifier panicked while broadcasting reward vote",
				zap.Any("error", msg),
			)
			sent = false
		}
	}()

	if err := g.notifier.Broadcast(ctx, evt); err != nil {
		metrics.BroadcastsCount.Add(ctx, 1, metrics.With("result", "error"))
		l.Warn("Failed to broadcast reward vote",
			zap.Error(err),
		)
		return false
	}
	metrics.BroadcastsCount.Add(ctx, 1, metrics.With("result", "ok"))
	return true
}

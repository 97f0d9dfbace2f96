// Package notify delivers reward events to whatever listens for them (game
// server plugins, the Discord bot). Delivery is best effort.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Event struct {
	ServerSlug string    `json:"serverSlug"`
	Username   string    `json:"username"`
	RewardSent bool      `json:"rewardSent"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notifier interface {
	Broadcast(ctx context.Context, evt Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Broadcast(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }

// Log writes every event to the logger.
type Log struct {
	Logger *zap.Logger
}

func (n Log) Broadcast(_ context.Context, evt Event) error {
	l := n.Logger
	if l == nil {
		l = zap.L()
	}
	l.Info("Reward vote",
		zap.String("server_slug", evt.ServerSlug),
		zap.String("username", evt.Username),
		zap.Bool("reward_sent", evt.RewardSent),
		zap.Time("timestamp", evt.Timestamp),
	)
	return nil
}

func (Log) Close() error { return nil }

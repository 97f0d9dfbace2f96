package vote

import (
	"fmt"
	"time"
)

type Status int

const (
	Accepted Status = iota
	RejectedUnknownServer
	RejectedCooldownActive
	RejectedInvalidSecret
	RejectedRewardsDisabled
)

// String returns the stable reason code of the status.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case RejectedUnknownServer:
		return "unknown_server"
	case RejectedCooldownActive:
		return "cooldown_active"
	case RejectedInvalidSecret:
		return "invalid_secret"
	case RejectedRewardsDisabled:
		return "rewards_disabled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Outcome struct {
	Status Status `json:"status"`

	// ServerSlug is the canonical slug of the server voted for. It is empty
	// when the server is unknown.
	ServerSlug string `json:"serverSlug,omitempty"`

	// Remaining is the time left until the next vote is allowed. Only set
	// with RejectedCooldownActive.
	Remaining time.Duration `json:"-"`

	// RewardSent reports whether a reward event was dispatched.
	RewardSent bool `json:"rewardSent"`
}

func (o Outcome) Accepted() bool {
	return o.Status == Accepted
}

// RemainingMs is the remaining cooldown in whole milliseconds, rounded up.
func (o Outcome) RemainingMs() int64 {
	ms := o.Remaining.Milliseconds()
	if o.Remaining > time.Duration(ms)*time.Millisecond {
		ms++
	}
	return ms
}

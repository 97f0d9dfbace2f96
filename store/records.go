package store

import "time"

type ServerRecord struct {
	Slug    string `json:"slug" bson:"slug"`
	Name    string `json:"name" bson:"name"`
	Address string `json:"address" bson:"address"`

	Online         bool      `json:"online" bson:"online"`
	Players        int       `json:"players" bson:"players"`
	MaxPlayers     int       `json:"maxPlayers" bson:"maxPlayers"`
	LastStatusSync time.Time `json:"lastStatusSync" bson:"lastStatusSync"`

	VoteCooldownMs      int64  `json:"voteCooldownMs" bson:"voteCooldownMs"`
	Vote                int64  `json:"vote" bson:"vote"`
	Secret              string `json:"secret" bson:"secret"`
	VotingRewardEnabled bool   `json:"votingRewardEnabled" bson:"votingRewardEnabled"`

	Disabled  bool      `json:"disabled" bson:"disabled"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// VoteCooldown returns the server specific cooldown, or def when the server
// does not define one.
func (r *ServerRecord) VoteCooldown(def time.Duration) time.Duration {
	if r.VoteCooldownMs > 0 {
		return time.Duration(r.VoteCooldownMs) * time.Millisecond
	}
	return def
}

type CooldownRecord struct {
	Username    string `json:"username" bson:"username"`
	ServerSlug  string `json:"serverSlug" bson:"serverSlug"`
	LastVotedAt int64  `json:"lastVotedAt" bson:"lastVotedAt"` // epoch millis
}

type VoteEvent struct {
	ID             string    `json:"id" bson:"_id"`
	Username       string    `json:"username" bson:"username"`
	ServerSlug     string    `json:"serverSlug" bson:"serverSlug"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
	RewardEligible bool      `json:"rewardEligible" bson:"rewardEligible"`
}

type UserRecord struct {
	Username  string    `json:"username" bson:"username"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

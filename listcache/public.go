package listcache

import (
	"time"

	"github.com/minelist/status-sync/store"
)

// PublicServer is the projection of a server record that is safe to expose.
type PublicServer struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Address string `json:"address"`

	Online         bool       `json:"online"`
	Players        int        `json:"players"`
	MaxPlayers     int        `json:"maxPlayers"`
	LastStatusSync *time.Time `json:"lastStatusSync"`

	Votes               int64 `json:"votes"`
	VoteCooldownMs      int64 `json:"voteCooldownMs"`
	VotingRewardEnabled bool  `json:"votingRewardEnabled"`
}

func project(rec *store.ServerRecord, defaultCooldown time.Duration) PublicServer {
	pub := PublicServer{
		Slug:                rec.Slug,
		Name:                rec.Name,
		Address:             rec.Address,
		Online:              rec.Online,
		Players:             rec.Players,
		MaxPlayers:          rec.MaxPlayers,
		Votes:               rec.Vote,
		VoteCooldownMs:      rec.VoteCooldown(defaultCooldown).Milliseconds(),
		VotingRewardEnabled: rec.VotingRewardEnabled,
	}
	if !rec.LastStatusSync.IsZero() {
		synced := rec.LastStatusSync
		pub.LastStatusSync = &synced
	}
	return pub
}

// Package status polls a third-party server status API and keeps the answers
// in a TTL cache that coalesces concurrent lookups of the same host.
package status

type Players struct {
	Online int `json:"online"`
	Max    int `json:"max"`
}

// Result is the status of one host as seen by a single poll. It is a value
// and is never mutated once produced.
type Result struct {
	Online  bool    `json:"online"`
	Players Players `json:"players"`
	Motd    *string `json:"motd"`
	Icon    *string `json:"icon"`
}

// Offline is the result reported for hosts that are down, unreachable or
// whose status could not be determined.
func Offline() Result {
	return Result{}
}

package domain

import "time"

// AccountID is the numeric identifier Roblox assigns to an account.
// It is stable for the lifetime of the account.
type AccountID int64

// PresenceStatus represents the account's reported state on the platform.
type PresenceStatus string

const (
	StatusOffline PresenceStatus = "offline"
	StatusOnline  PresenceStatus = "online"
	StatusInGame  PresenceStatus = "in_game"
)

// PresenceSnapshot is a single observation of an account's presence.
// GameID is only meaningful when Status == StatusInGame.
type PresenceSnapshot struct {
	AccountID  AccountID      `json:"account_id"`
	Status     PresenceStatus `json:"status"`
	GameID     int64          `json:"game_id,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Same reports whether two snapshots describe the same presence.
// Timestamps are ignored; only (status, game) count.
func (s PresenceSnapshot) Same(other PresenceSnapshot) bool {
	if s.Status != other.Status {
		return false
	}
	if s.Status == StatusInGame {
		return s.GameID == other.GameID
	}
	return true
}

// TransitionEvent records a confirmed presence change for an account.
// It is the payload delivered to subscriber destinations.
type TransitionEvent struct {
	AccountID AccountID        `json:"account_id"`
	From      PresenceSnapshot `json:"from"`
	To        PresenceSnapshot `json:"to"`
	At        time.Time        `json:"at"`
}

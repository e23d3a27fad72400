package entities

import "time"

// Owner is the party currently in control of a conversation.
type Owner string

const (
	BotOwned   Owner = "bot"
	AdminOwned Owner = "admin"
)

// OwnershipState records who controls a user's conversation. One record per
// user; only the handoff controller mutates it, bumping Version on every
// committed change.
type OwnershipState struct {
	UserID          string     `json:"userId"`
	Version         int64      `json:"version"`
	BotEnabled      bool       `json:"botEnabled"`
	AdminTakeover   bool       `json:"adminTakeover"`
	AdminTakeoverBy *string    `json:"adminTakeoverBy"`
	AdminTakeoverAt *time.Time `json:"adminTakeoverAt"`
}

// DefaultOwnership is the state of a user nobody has touched yet.
func DefaultOwnership(userID string) OwnershipState {
	return OwnershipState{UserID: userID, BotEnabled: true}
}

// Owner reports the two-state view of the record. Takeover always wins.
func (s OwnershipState) Owner() Owner {
	if s.AdminTakeover {
		return AdminOwned
	}
	return BotOwned
}

// CanAutoRespond reports whether the worker may send an automated reply.
func (s OwnershipState) CanAutoRespond() bool {
	return !s.AdminTakeover && s.BotEnabled
}

// HeldBy returns the admin holding the takeover, or "".
func (s OwnershipState) HeldBy() string {
	if !s.AdminTakeover || s.AdminTakeoverBy == nil {
		return ""
	}
	return *s.AdminTakeoverBy
}

// NewerThan reports whether s was committed after o.
func (s OwnershipState) NewerThan(o OwnershipState) bool {
	return s.Version > o.Version
}

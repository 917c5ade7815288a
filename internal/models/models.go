package models

import "time"

// Channel is a single entry in the public directory. The identifier is
// assigned by the datastore on creation and is stable for the lifetime of
// the record.
type Channel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ActionKind identifies the kind of channel mutation recorded in the audit
// trail.
type ActionKind string

const (
	ActionCreatedChannel ActionKind = "created_channel"
	ActionUpdatedChannel ActionKind = "updated_channel"
	ActionDeletedChannel ActionKind = "deleted_channel"
)

// Valid reports whether the kind is one of the recognised mutation kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionCreatedChannel, ActionUpdatedChannel, ActionDeletedChannel:
		return true
	default:
		return false
	}
}

// AdminLogEntry records one permitted channel mutation. Entries are
// append-only: they are never updated or deleted once written.
type AdminLogEntry struct {
	ID        int64      `json:"id"`
	ActorID   int64      `json:"actorId"`
	Action    ActionKind `json:"action"`
	ChannelID int64      `json:"channelId"`
	CreatedAt time.Time  `json:"createdAt"`
}

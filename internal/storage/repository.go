package storage

import (
	"context"
	"errors"

	"canaldir/internal/models"
)

var (
	// ErrChannelNotFound is returned when the referenced channel does not
	// exist in the datastore.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrAdminExists is returned when adding an actor that is already a
	// member of the admin set.
	ErrAdminExists = errors.New("admin already exists")
	// ErrAdminNotFound is returned when removing an actor that is not a
	// member of the admin set.
	ErrAdminNotFound = errors.New("admin not found")
)

// CreateChannelParams captures the attributes supplied when creating a
// channel. The datastore assigns the identifier.
type CreateChannelParams struct {
	Name        string
	Description string
	Link        string
	Image       string
}

// ChannelUpdate describes a partial channel update. Nil fields are left
// untouched.
type ChannelUpdate struct {
	Name        *string
	Description *string
	Link        *string
	Image       *string
}

// AdminLogFilter narrows an audit-trail listing. A nil ActorID returns the
// full log.
type AdminLogFilter struct {
	ActorID *int64
}

// Repository exposes the datastore operations required by the API handlers,
// the authorization policy, and the audit log. Membership reads are issued
// fresh on every call; implementations must not cache them in process.
type Repository interface {
	Ping(ctx context.Context) error

	ListChannels(ctx context.Context, query string) ([]models.Channel, error)
	GetChannel(ctx context.Context, id int64) (models.Channel, error)
	CreateChannel(ctx context.Context, params CreateChannelParams) (models.Channel, error)
	UpdateChannel(ctx context.Context, id int64, update ChannelUpdate) (models.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error

	ListAdmins(ctx context.Context) ([]int64, error)
	IsAdmin(ctx context.Context, actorID int64) (bool, error)
	AddAdmin(ctx context.Context, actorID int64) error
	RemoveAdmin(ctx context.Context, actorID int64) error

	ListDevelopers(ctx context.Context) ([]int64, error)
	IsDeveloper(ctx context.Context, actorID int64) (bool, error)

	AppendAdminLog(ctx context.Context, actorID int64, action models.ActionKind, channelID int64) (models.AdminLogEntry, error)
	ListAdminLog(ctx context.Context, filter AdminLogFilter) ([]models.AdminLogEntry, error)
}

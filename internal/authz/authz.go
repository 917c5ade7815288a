// Package authz decides whether an actor may perform a given operation.
// Membership is read from the datastore on every decision so revocations
// take effect immediately; nothing is cached in process.
package authz

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the actor lacks the permission the
// operation requires.
var ErrUnauthorized = errors.New("actor is not authorized")

// Action names a permission the policy can grant.
type Action string

const (
	// ManageChannels covers creating, updating, and deleting directory
	// entries, and uploading channel images.
	ManageChannels Action = "manage_channels"
	// ManageAdmins covers granting and revoking admin membership.
	ManageAdmins Action = "manage_admins"
	// ReadAuditLog covers reading the full audit trail. Reading one's own
	// entries requires no permission.
	ReadAuditLog Action = "read_audit_log"
)

// MembershipSource answers the two role questions the policy asks. The
// storage Repository satisfies it.
type MembershipSource interface {
	IsAdmin(ctx context.Context, actorID int64) (bool, error)
	IsDeveloper(ctx context.Context, actorID int64) (bool, error)
}

// Policy grants or denies actions. Admins may manage channels; developers
// may do everything admins can plus manage the admin set and read the full
// audit trail. The configured developer id is always treated as a
// developer regardless of datastore contents, so a freshly provisioned
// deployment has a working operator before any rows exist.
type Policy struct {
	source      MembershipSource
	developerID int64
}

// NewPolicy builds a policy over the given membership source. developerID
// may be zero when no standing developer is configured.
func NewPolicy(source MembershipSource, developerID int64) *Policy {
	return &Policy{source: source, developerID: developerID}
}

// DeveloperID reports the configured standing developer id, or zero.
func (p *Policy) DeveloperID() int64 {
	return p.developerID
}

// IsDeveloper reports whether the actor holds the developer role, either
// via configuration or via the datastore.
func (p *Policy) IsDeveloper(ctx context.Context, actorID int64) (bool, error) {
	if p.developerID != 0 && actorID == p.developerID {
		return true, nil
	}
	isDev, err := p.source.IsDeveloper(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("check developer membership: %w", err)
	}
	return isDev, nil
}

// Authorize returns nil when the actor may perform the action and
// ErrUnauthorized when membership denies it. Datastore failures are
// reported as errors, never as silent denials or grants.
func (p *Policy) Authorize(ctx context.Context, actorID int64, action Action) error {
	isDev, err := p.IsDeveloper(ctx, actorID)
	if err != nil {
		return err
	}
	if isDev {
		return nil
	}

	switch action {
	case ManageChannels:
		isAdmin, err := p.source.IsAdmin(ctx, actorID)
		if err != nil {
			return fmt.Errorf("check admin membership: %w", err)
		}
		if isAdmin {
			return nil
		}
		return ErrUnauthorized
	case ManageAdmins, ReadAuditLog:
		// Developer-only actions; the developer check above already ran.
		return ErrUnauthorized
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

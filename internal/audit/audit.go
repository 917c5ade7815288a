// Package audit records permitted channel mutations in an append-only
// trail. Recording happens after the mutation commits; a failed append is
// reported distinctly so callers never hide the gap in the trail.
package audit

import (
	"context"
	"fmt"

	"canaldir/internal/models"
	"canaldir/internal/storage"
)

// AppendError reports a mutation that succeeded but whose audit entry
// could not be written. The mutation is not rolled back.
type AppendError struct {
	Action models.ActionKind
	Err    error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("record %s in audit trail: %v", e.Action, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}

// Recorder is the slice of the datastore the audit log writes to and reads
// from.
type Recorder interface {
	AppendAdminLog(ctx context.Context, actorID int64, action models.ActionKind, channelID int64) (models.AdminLogEntry, error)
	ListAdminLog(ctx context.Context, filter storage.AdminLogFilter) ([]models.AdminLogEntry, error)
}

// Log is the audit trail for channel mutations.
type Log struct {
	store Recorder
}

// NewLog builds an audit log over the given datastore.
func NewLog(store Recorder) *Log {
	return &Log{store: store}
}

// Record appends one entry for a mutation that already committed. Failures
// come back as *AppendError.
func (l *Log) Record(ctx context.Context, actorID int64, action models.ActionKind, channelID int64) error {
	if _, err := l.store.AppendAdminLog(ctx, actorID, action, channelID); err != nil {
		return &AppendError{Action: action, Err: err}
	}
	return nil
}

// Entries returns the full trail, newest first.
func (l *Log) Entries(ctx context.Context) ([]models.AdminLogEntry, error) {
	entries, err := l.store.ListAdminLog(ctx, storage.AdminLogFilter{})
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	return entries, nil
}

// EntriesForActor returns the actor's own entries, newest first.
func (l *Log) EntriesForActor(ctx context.Context, actorID int64) ([]models.AdminLogEntry, error) {
	entries, err := l.store.ListAdminLog(ctx, storage.AdminLogFilter{ActorID: &actorID})
	if err != nil {
		return nil, fmt.Errorf("list audit trail for actor %d: %w", actorID, err)
	}
	return entries, nil
}

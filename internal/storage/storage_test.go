package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"canaldir/internal/models"
)

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "store.json"), opts...)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return store
}

func createChannel(t *testing.T, store *Storage, name string) models.Channel {
	t.Helper()
	channel, err := store.CreateChannel(context.Background(), CreateChannelParams{
		Name:        name,
		Description: "desc",
		Link:        "https://example.com/" + name,
	})
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	return channel
}

func TestChannelLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	created := createChannel(t, store, "Automação Residencial")
	if created.ID == 0 {
		t.Fatalf("expected assigned id, got 0")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}

	fetched, err := store.GetChannel(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if fetched.Name != created.Name {
		t.Fatalf("expected name %q, got %q", created.Name, fetched.Name)
	}

	newName := "Automação Industrial"
	updated, err := store.UpdateChannel(ctx, created.ID, ChannelUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateChannel: %v", err)
	}
	if updated.Name != newName {
		t.Fatalf("expected updated name %q, got %q", newName, updated.Name)
	}
	if updated.Description != created.Description {
		t.Fatalf("expected description untouched, got %q", updated.Description)
	}

	if err := store.DeleteChannel(ctx, created.ID); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if _, err := store.GetChannel(ctx, created.ID); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound after delete, got %v", err)
	}
	if err := store.DeleteChannel(ctx, created.ID); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound on second delete, got %v", err)
	}
}

func TestUpdateMissingChannel(t *testing.T) {
	store := newTestStorage(t)
	name := "ghost"
	if _, err := store.UpdateChannel(context.Background(), 42, ChannelUpdate{Name: &name}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestListChannelsQueryFoldsAccents(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	createChannel(t, store, "Automação Residencial")
	createChannel(t, store, "Culinária")
	createChannel(t, store, "Notícias")

	matches, err := store.ListChannels(ctx, "automacao")
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Automação Residencial" {
		t.Fatalf("expected single accented match, got %+v", matches)
	}

	all, err := store.ListChannels(ctx, "")
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 channels for empty query, got %d", len(all))
	}
}

func TestStorageReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	created := createChannel(t, store, "Esportes")
	if err := store.AddAdmin(context.Background(), 7); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	fetched, err := reloaded.GetChannel(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetChannel after reload: %v", err)
	}
	if fetched.Name != "Esportes" {
		t.Fatalf("expected channel to survive reload, got %+v", fetched)
	}
	isAdmin, err := reloaded.IsAdmin(context.Background(), 7)
	if err != nil {
		t.Fatalf("IsAdmin after reload: %v", err)
	}
	if !isAdmin {
		t.Fatalf("expected admin membership to survive reload")
	}
}

func TestAdminMembership(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.AddAdmin(ctx, 10); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}
	if err := store.AddAdmin(ctx, 10); !errors.Is(err, ErrAdminExists) {
		t.Fatalf("expected ErrAdminExists, got %v", err)
	}
	if err := store.AddAdmin(ctx, 11); err != nil {
		t.Fatalf("AddAdmin: %v", err)
	}

	admins, err := store.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 2 || admins[0] != 10 || admins[1] != 11 {
		t.Fatalf("expected sorted admin ids [10 11], got %v", admins)
	}

	if err := store.RemoveAdmin(ctx, 10); err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
	if err := store.RemoveAdmin(ctx, 10); !errors.Is(err, ErrAdminNotFound) {
		t.Fatalf("expected ErrAdminNotFound, got %v", err)
	}
	isAdmin, err := store.IsAdmin(ctx, 10)
	if err != nil {
		t.Fatalf("IsAdmin: %v", err)
	}
	if isAdmin {
		t.Fatalf("expected removed actor to lose membership")
	}
}

func TestSeedDevelopers(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.SeedDevelopers(99, 100); err != nil {
		t.Fatalf("SeedDevelopers: %v", err)
	}
	// Seeding an existing developer must not fail.
	if err := store.SeedDevelopers(99); err != nil {
		t.Fatalf("SeedDevelopers repeat: %v", err)
	}

	devs, err := store.ListDevelopers(ctx)
	if err != nil {
		t.Fatalf("ListDevelopers: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected 2 developers, got %v", devs)
	}
	isDev, err := store.IsDeveloper(ctx, 99)
	if err != nil {
		t.Fatalf("IsDeveloper: %v", err)
	}
	if !isDev {
		t.Fatalf("expected 99 to be a developer")
	}
}

func TestAdminLogOrderingAndFilter(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStorage(t, WithClock(func() time.Time {
		current = current.Add(time.Second)
		return current
	}))
	ctx := context.Background()

	if _, err := store.AppendAdminLog(ctx, 1, models.ActionCreatedChannel, 10); err != nil {
		t.Fatalf("AppendAdminLog: %v", err)
	}
	if _, err := store.AppendAdminLog(ctx, 2, models.ActionUpdatedChannel, 10); err != nil {
		t.Fatalf("AppendAdminLog: %v", err)
	}
	if _, err := store.AppendAdminLog(ctx, 1, models.ActionDeletedChannel, 10); err != nil {
		t.Fatalf("AppendAdminLog: %v", err)
	}

	entries, err := store.ListAdminLog(ctx, AdminLogFilter{})
	if err != nil {
		t.Fatalf("ListAdminLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Fatalf("expected newest-first ordering, got %v before %v", entries[i-1].CreatedAt, entries[i].CreatedAt)
		}
	}
	if entries[0].Action != models.ActionDeletedChannel {
		t.Fatalf("expected newest entry first, got %s", entries[0].Action)
	}

	actor := int64(1)
	filtered, err := store.ListAdminLog(ctx, AdminLogFilter{ActorID: &actor})
	if err != nil {
		t.Fatalf("ListAdminLog filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 entries for actor 1, got %d", len(filtered))
	}
	for _, entry := range filtered {
		if entry.ActorID != actor {
			t.Fatalf("filtered listing leaked entry for actor %d", entry.ActorID)
		}
	}
}

func TestAppendAdminLogRejectsUnknownAction(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.AppendAdminLog(context.Background(), 1, models.ActionKind("renamed_channel"), 10); err == nil {
		t.Fatalf("expected error for unknown action kind")
	}
}

func TestPersistFailureRollsBack(t *testing.T) {
	fail := false
	store := newTestStorage(t, WithPersistOverride(func(any) error {
		if fail {
			return fmt.Errorf("disk full")
		}
		return nil
	}))
	ctx := context.Background()

	created := createChannel(t, store, "Filmes")

	fail = true
	name := "Séries"
	if _, err := store.UpdateChannel(ctx, created.ID, ChannelUpdate{Name: &name}); err == nil {
		t.Fatalf("expected persist failure to surface")
	}

	fail = false
	fetched, err := store.GetChannel(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if fetched.Name != "Filmes" {
		t.Fatalf("expected rollback to original name, got %q", fetched.Name)
	}
}

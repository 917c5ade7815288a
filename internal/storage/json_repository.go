package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"canaldir/internal/models"
)

type dataset struct {
	Channels      map[int64]models.Channel `json:"channels"`
	Admins        map[int64]time.Time      `json:"admins"`
	Developers    map[int64]time.Time      `json:"developers"`
	AdminLog      []models.AdminLogEntry   `json:"adminLog"`
	NextChannelID int64                    `json:"nextChannelId"`
	NextLogID     int64                    `json:"nextLogId"`
}

func newDataset() dataset {
	return dataset{
		Channels:      make(map[int64]models.Channel),
		Admins:        make(map[int64]time.Time),
		Developers:    make(map[int64]time.Time),
		NextChannelID: 1,
		NextLogID:     1,
	}
}

// Storage is a JSON-file backed repository used for development and tests.
// All access is serialised through a single mutex; every mutation is
// persisted to disk before it is acknowledged.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	clock    func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

// NewStorage opens (or creates) a JSON-file repository at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewJSONRepository opens a JSON-file repository and returns it behind the
// Repository interface.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Channels == nil {
		s.data.Channels = make(map[int64]models.Channel)
	}
	if s.data.Admins == nil {
		s.data.Admins = make(map[int64]time.Time)
	}
	if s.data.Developers == nil {
		s.data.Developers = make(map[int64]time.Time)
	}
	if s.data.NextChannelID < 1 {
		s.data.NextChannelID = 1
	}
	if s.data.NextLogID < 1 {
		s.data.NextLogID = 1
	}
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(filepath.Dir(s.filePath))
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Storage) ListChannels(ctx context.Context, query string) ([]models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]models.Channel, 0, len(s.data.Channels))
	for _, channel := range s.data.Channels {
		if matchesQuery(channel.Name, channel.Description, query) {
			channels = append(channels, channel)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

func (s *Storage) GetChannel(ctx context.Context, id int64) (models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return models.Channel{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	channel, ok := s.data.Channels[id]
	if !ok {
		return models.Channel{}, ErrChannelNotFound
	}
	return channel, nil
}

func (s *Storage) CreateChannel(ctx context.Context, params CreateChannelParams) (models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return models.Channel{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	channel := models.Channel{
		ID:          s.data.NextChannelID,
		Name:        params.Name,
		Description: params.Description,
		Link:        params.Link,
		Image:       params.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.data.NextChannelID++
	s.data.Channels[channel.ID] = channel
	if err := s.persist(); err != nil {
		delete(s.data.Channels, channel.ID)
		s.data.NextChannelID--
		return models.Channel{}, err
	}
	return channel, nil
}

func (s *Storage) UpdateChannel(ctx context.Context, id int64, update ChannelUpdate) (models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return models.Channel{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.data.Channels[id]
	if !ok {
		return models.Channel{}, ErrChannelNotFound
	}
	previous := channel
	if update.Name != nil {
		channel.Name = *update.Name
	}
	if update.Description != nil {
		channel.Description = *update.Description
	}
	if update.Link != nil {
		channel.Link = *update.Link
	}
	if update.Image != nil {
		channel.Image = *update.Image
	}
	channel.UpdatedAt = s.clock()
	s.data.Channels[id] = channel
	if err := s.persist(); err != nil {
		s.data.Channels[id] = previous
		return models.Channel{}, err
	}
	return channel, nil
}

func (s *Storage) DeleteChannel(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	channel, ok := s.data.Channels[id]
	if !ok {
		return ErrChannelNotFound
	}
	delete(s.data.Channels, id)
	if err := s.persist(); err != nil {
		s.data.Channels[id] = channel
		return err
	}
	return nil
}

func (s *Storage) ListAdmins(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.data.Admins))
	for id := range s.data.Admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Storage) IsAdmin(ctx context.Context, actorID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.Admins[actorID]
	return ok, nil
}

func (s *Storage) AddAdmin(ctx context.Context, actorID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data.Admins[actorID]; exists {
		return ErrAdminExists
	}
	s.data.Admins[actorID] = s.clock()
	if err := s.persist(); err != nil {
		delete(s.data.Admins, actorID)
		return err
	}
	return nil
}

func (s *Storage) RemoveAdmin(ctx context.Context, actorID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	addedAt, exists := s.data.Admins[actorID]
	if !exists {
		return ErrAdminNotFound
	}
	delete(s.data.Admins, actorID)
	if err := s.persist(); err != nil {
		s.data.Admins[actorID] = addedAt
		return err
	}
	return nil
}

func (s *Storage) ListDevelopers(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.data.Developers))
	for id := range s.data.Developers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Storage) IsDeveloper(ctx context.Context, actorID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.Developers[actorID]
	return ok, nil
}

// SeedDevelopers records the given actor ids as developers. Developer
// membership has no public management endpoint; it is provisioned out of
// band (bootstrap tooling, tests).
func (s *Storage) SeedDevelopers(ids ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	added := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, exists := s.data.Developers[id]; exists {
			continue
		}
		s.data.Developers[id] = now
		added = append(added, id)
	}
	if err := s.persist(); err != nil {
		for _, id := range added {
			delete(s.data.Developers, id)
		}
		return err
	}
	return nil
}

func (s *Storage) AppendAdminLog(ctx context.Context, actorID int64, action models.ActionKind, channelID int64) (models.AdminLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.AdminLogEntry{}, err
	}
	if !action.Valid() {
		return models.AdminLogEntry{}, fmt.Errorf("invalid action kind %q", action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.AdminLogEntry{
		ID:        s.data.NextLogID,
		ActorID:   actorID,
		Action:    action,
		ChannelID: channelID,
		CreatedAt: s.clock(),
	}
	s.data.NextLogID++
	s.data.AdminLog = append(s.data.AdminLog, entry)
	if err := s.persist(); err != nil {
		s.data.AdminLog = s.data.AdminLog[:len(s.data.AdminLog)-1]
		s.data.NextLogID--
		return models.AdminLogEntry{}, err
	}
	return entry, nil
}

func (s *Storage) ListAdminLog(ctx context.Context, filter AdminLogFilter) ([]models.AdminLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.AdminLogEntry, 0, len(s.data.AdminLog))
	for _, entry := range s.data.AdminLog {
		if filter.ActorID != nil && entry.ActorID != *filter.ActorID {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

var _ Repository = (*Storage)(nil)

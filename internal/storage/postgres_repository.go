package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"canaldir/internal/models"
)

const uniqueViolationCode = "23505"

// PostgresRepository is the production datastore. It implements Repository
// on top of a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to Postgres, verifies the connection, and
// creates the schema when it does not exist yet.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (*PostgresRepository, error) {
	cfg := defaultPostgresConfig(dsn)
	composeOptions(opts).applyPostgres(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := &PostgresRepository{pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the tables the repository needs. Statements are
// idempotent so repeated startups are safe.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS admins (
			actor_id BIGINT PRIMARY KEY,
			added_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS developers (
			actor_id BIGINT PRIMARY KEY,
			added_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS admin_logs (
			id BIGSERIAL PRIMARY KEY,
			actor_id BIGINT NOT NULL,
			action TEXT NOT NULL,
			channel_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS admin_logs_actor_idx ON admin_logs (actor_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS admin_logs_created_idx ON admin_logs (created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListChannels(ctx context.Context, query string) ([]models.Channel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, link, image, created_at, updated_at FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	// Matching happens client-side with the same diacritic folding the
	// JSON driver uses, so both drivers rank "São" and "Sao" identically
	// without requiring the unaccent extension.
	channels := make([]models.Channel, 0)
	for rows.Next() {
		var channel models.Channel
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.Description, &channel.Link, &channel.Image, &channel.CreatedAt, &channel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		if matchesQuery(channel.Name, channel.Description, query) {
			channels = append(channels, channel)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

func (r *PostgresRepository) GetChannel(ctx context.Context, id int64) (models.Channel, error) {
	var channel models.Channel
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, link, image, created_at, updated_at FROM channels WHERE id = $1`, id,
	).Scan(&channel.ID, &channel.Name, &channel.Description, &channel.Link, &channel.Image, &channel.CreatedAt, &channel.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return models.Channel{}, fmt.Errorf("get channel: %w", err)
	}
	return channel, nil
}

func (r *PostgresRepository) CreateChannel(ctx context.Context, params CreateChannelParams) (models.Channel, error) {
	var channel models.Channel
	err := r.pool.QueryRow(ctx,
		`INSERT INTO channels (name, description, link, image)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, description, link, image, created_at, updated_at`,
		params.Name, params.Description, params.Link, params.Image,
	).Scan(&channel.ID, &channel.Name, &channel.Description, &channel.Link, &channel.Image, &channel.CreatedAt, &channel.UpdatedAt)
	if err != nil {
		return models.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return channel, nil
}

func (r *PostgresRepository) UpdateChannel(ctx context.Context, id int64, update ChannelUpdate) (models.Channel, error) {
	var channel models.Channel
	err := r.pool.QueryRow(ctx,
		`UPDATE channels SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			link = COALESCE($4, link),
			image = COALESCE($5, image),
			updated_at = now()
		 WHERE id = $1
		 RETURNING id, name, description, link, image, created_at, updated_at`,
		id, update.Name, update.Description, update.Link, update.Image,
	).Scan(&channel.ID, &channel.Name, &channel.Description, &channel.Link, &channel.Image, &channel.CreatedAt, &channel.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return models.Channel{}, fmt.Errorf("update channel: %w", err)
	}
	return channel, nil
}

func (r *PostgresRepository) DeleteChannel(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (r *PostgresRepository) ListAdmins(ctx context.Context) ([]int64, error) {
	return r.listActorIDs(ctx, `SELECT actor_id FROM admins ORDER BY actor_id`)
}

func (r *PostgresRepository) IsAdmin(ctx context.Context, actorID int64) (bool, error) {
	return r.actorExists(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE actor_id = $1)`, actorID)
}

func (r *PostgresRepository) AddAdmin(ctx context.Context, actorID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO admins (actor_id) VALUES ($1)`, actorID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return ErrAdminExists
	}
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RemoveAdmin(ctx context.Context, actorID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE actor_id = $1`, actorID)
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (r *PostgresRepository) ListDevelopers(ctx context.Context) ([]int64, error) {
	return r.listActorIDs(ctx, `SELECT actor_id FROM developers ORDER BY actor_id`)
}

func (r *PostgresRepository) IsDeveloper(ctx context.Context, actorID int64) (bool, error) {
	return r.actorExists(ctx, `SELECT EXISTS (SELECT 1 FROM developers WHERE actor_id = $1)`, actorID)
}

// SeedDeveloper records an actor as a developer. Used by bootstrap tooling;
// inserting an existing developer is a no-op.
func (r *PostgresRepository) SeedDeveloper(ctx context.Context, actorID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO developers (actor_id) VALUES ($1) ON CONFLICT (actor_id) DO NOTHING`, actorID)
	if err != nil {
		return fmt.Errorf("seed developer: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendAdminLog(ctx context.Context, actorID int64, action models.ActionKind, channelID int64) (models.AdminLogEntry, error) {
	if !action.Valid() {
		return models.AdminLogEntry{}, fmt.Errorf("invalid action kind %q", action)
	}
	var entry models.AdminLogEntry
	err := r.pool.QueryRow(ctx,
		`INSERT INTO admin_logs (actor_id, action, channel_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, actor_id, action, channel_id, created_at`,
		actorID, string(action), channelID,
	).Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.ChannelID, &entry.CreatedAt)
	if err != nil {
		return models.AdminLogEntry{}, fmt.Errorf("append admin log: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) ListAdminLog(ctx context.Context, filter AdminLogFilter) ([]models.AdminLogEntry, error) {
	query := `SELECT id, actor_id, action, channel_id, created_at FROM admin_logs`
	args := []any{}
	if filter.ActorID != nil {
		query += ` WHERE actor_id = $1`
		args = append(args, *filter.ActorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list admin log: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AdminLogEntry, 0)
	for rows.Next() {
		var entry models.AdminLogEntry
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.ChannelID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admin log: %w", err)
	}
	return entries, nil
}

func (r *PostgresRepository) listActorIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan actor id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) actorExists(ctx context.Context, query string, actorID int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, query, actorID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check actor membership: %w", err)
	}
	return exists, nil
}

var _ Repository = (*PostgresRepository)(nil)

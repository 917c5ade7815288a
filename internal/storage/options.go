package storage

import "time"

// Option configures a repository at construction time. Options are shared
// between the JSON and Postgres drivers; an option that does not apply to a
// driver is a no-op there.
type Option interface {
	applyJSON(*Storage)
	applyPostgres(*PostgresConfig)
}

type optionFunc struct {
	json     func(*Storage)
	postgres func(*PostgresConfig)
}

func (o optionFunc) applyJSON(s *Storage) {
	if o.json != nil {
		o.json(s)
	}
}

func (o optionFunc) applyPostgres(cfg *PostgresConfig) {
	if o.postgres != nil {
		o.postgres(cfg)
	}
}

// WithClock overrides the time source. Intended for tests that need
// deterministic timestamps.
func WithClock(clock func() time.Time) Option {
	return optionFunc{
		json: func(s *Storage) {
			if clock != nil {
				s.clock = clock
			}
		},
	}
}

// WithPersistOverride intercepts JSON persistence. Intended for tests that
// simulate persistence failures.
func WithPersistOverride(persist func(any) error) Option {
	return optionFunc{
		json: func(s *Storage) {
			if persist != nil {
				s.persistOverride = func(d dataset) error { return persist(d) }
			}
		},
	}
}

// WithPostgresPoolLimits bounds the connection pool size.
func WithPostgresPoolLimits(minConns, maxConns int32) Option {
	return optionFunc{
		postgres: func(cfg *PostgresConfig) {
			cfg.MinConns = minConns
			cfg.MaxConns = maxConns
		},
	}
}

// WithPostgresConnLifetimes sets connection recycling intervals.
func WithPostgresConnLifetimes(maxLifetime, maxIdle time.Duration) Option {
	return optionFunc{
		postgres: func(cfg *PostgresConfig) {
			cfg.MaxConnLifetime = maxLifetime
			cfg.MaxConnIdleTime = maxIdle
		},
	}
}

// WithPostgresApplicationName labels pool connections for server-side
// inspection.
func WithPostgresApplicationName(name string) Option {
	return optionFunc{
		postgres: func(cfg *PostgresConfig) {
			cfg.ApplicationName = name
		},
	}
}

func composeOptions(opts []Option) Option {
	return optionFunc{
		json: func(s *Storage) {
			for _, opt := range opts {
				if opt != nil {
					opt.applyJSON(s)
				}
			}
		},
		postgres: func(cfg *PostgresConfig) {
			for _, opt := range opts {
				if opt != nil {
					opt.applyPostgres(cfg)
				}
			}
		},
	}
}

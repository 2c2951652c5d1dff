package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// Compile-time check that Postgres implements Tier.
var _ Tier = (*Postgres)(nil)

// Postgres is the shared cache tier for multi-instance deployments.
// Every operation runs under a short timeout so a slow database can
// never eat into a probe's upstream budget; errors degrade to a miss.
type Postgres struct {
	db        *sql.DB
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewPostgres creates a shared cache tier. opTimeout bounds every
// database round-trip (recommended 200ms).
func NewPostgres(db *sql.DB, opTimeout time.Duration, logger *slog.Logger) *Postgres {
	if opTimeout <= 0 {
		opTimeout = 200 * time.Millisecond
	}
	return &Postgres{db: db, opTimeout: opTimeout, logger: logger}
}

// Migrate creates the probe_cache table if it doesn't exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS probe_cache (
			key         TEXT PRIMARY KEY,
			value       JSONB NOT NULL,
			source      TEXT NOT NULL,
			fetched_at  TIMESTAMPTZ NOT NULL,
			ttl_seconds INT NOT NULL
		);
	`)
	return err
}

// Get loads an entry. Errors and timeouts report a miss.
func (p *Postgres) Get(ctx context.Context, key string) (json.RawMessage, Meta, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	var (
		value      []byte
		source     string
		fetchedAt  time.Time
		ttlSeconds int
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT value, source, fetched_at, ttl_seconds
		FROM probe_cache WHERE key = $1
	`, key).Scan(&value, &source, &fetchedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return nil, Meta{}, false
	}
	if err != nil {
		p.logger.Warn("shared cache read failed", "key", key, "error", err)
		return nil, Meta{}, false
	}

	return value, Meta{
		Source:    source,
		FetchedAt: fetchedAt,
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, true
}

// Set upserts an entry. Failures are logged and dropped — the memory
// tier already holds the value for this instance.
func (p *Postgres) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration, source string) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO probe_cache (key, value, source, fetched_at, ttl_seconds)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    source = EXCLUDED.source,
		    fetched_at = EXCLUDED.fetched_at,
		    ttl_seconds = EXCLUDED.ttl_seconds
	`, key, []byte(value), source, int(ttl.Seconds()))
	if err != nil {
		p.logger.Warn("shared cache write failed", "key", key, "error", err)
	}
}

package action

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists idempotency records in PostgreSQL. The primary
// key on idempotency_key is what makes the guard safe across instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed idempotency store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT idempotency_key, request_hash, result, created_at, expires_at
		FROM idempotency_records
		WHERE idempotency_key = $1`,
		key,
	)

	var (
		record     IdempotencyRecord
		resultJSON []byte
	)
	err := row.Scan(&record.Key, &record.RequestHash, &resultJSON, &record.CreatedAt, &record.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultJSON, &record.Result); err != nil {
		return nil, err
	}
	return &record, nil
}

func (p *PostgresStore) Put(ctx context.Context, record *IdempotencyRecord) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return err
	}

	// Expired rows are overwritten in place so a reused key after the
	// window behaves like a fresh one.
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (idempotency_key, request_hash, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			result = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at < EXCLUDED.created_at`,
		record.Key, record.RequestHash, resultJSON, record.CreatedAt, record.ExpiresAt,
	)
	return err
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM idempotency_records WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

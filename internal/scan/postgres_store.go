package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/meghal86/guardian/internal/probe"
	"github.com/meghal86/guardian/internal/trustscore"
)

// PostgresStore persists scan history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed scan history store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Record(ctx context.Context, r *Result) error {
	factorsJSON, err := json.Marshal(r.Factors)
	if err != nil {
		return err
	}
	probesJSON, err := json.Marshal(r.Probes)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO scans (
			request_id, address, network, state, score, grade,
			confidence, degraded, factors, probes, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.RequestID, strings.ToLower(r.Address), r.Network, string(r.State),
		r.Score, r.Grade, r.Confidence, r.Degraded,
		factorsJSON, probesJSON, r.StartedAt, r.CompletedAt,
	)
	return err
}

func (p *PostgresStore) ListByAddress(ctx context.Context, address, network string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT request_id, address, network, state, score, grade,
		       confidence, degraded, factors, probes, started_at, completed_at
		FROM scans
		WHERE address = $1 AND network = $2
		ORDER BY completed_at DESC
		LIMIT $3`,
		strings.ToLower(address), network, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRow(rows *sql.Rows) (*Result, error) {
	var (
		r           Result
		state       string
		factorsJSON []byte
		probesJSON  []byte
	)
	if err := rows.Scan(
		&r.RequestID, &r.Address, &r.Network, &state, &r.Score, &r.Grade,
		&r.Confidence, &r.Degraded, &factorsJSON, &probesJSON,
		&r.StartedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}
	r.State = State(state)

	if len(factorsJSON) > 0 {
		if err := json.Unmarshal(factorsJSON, &r.Factors); err != nil {
			return nil, err
		}
	}
	if len(probesJSON) > 0 {
		if err := json.Unmarshal(probesJSON, &r.Probes); err != nil {
			return nil, err
		}
	}
	if r.Factors == nil {
		r.Factors = []trustscore.Factor{}
	}
	if r.Probes == nil {
		r.Probes = map[probe.Name]ProbeOutcome{}
	}
	return &r, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matt-riley/splitz/internal/metrics"
	"github.com/matt-riley/splitz/internal/visitor"
)

// PostgresStore persists visitor state as JSONB rows in the
// splitz_visitors table, backed by a pgxpool connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a [PostgresStore] on an existing pool. The
// caller owns the pool unless Close is used.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RegisterMetrics exposes live pool statistics on the given registry.
func (s *PostgresStore) RegisterMetrics(reg prometheus.Registerer) {
	metrics.RegisterPoolMetrics(reg, s.pool)
}

// Save upserts the visitor state row.
func (s *PostgresStore) Save(ctx context.Context, state visitor.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal visitor state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO splitz_visitors (code, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (code) DO UPDATE
		SET state = EXCLUDED.state, updated_at = NOW()
	`, state.Code, payload)
	if err != nil {
		return fmt.Errorf("save visitor: %w", err)
	}

	return nil
}

// Load returns the stored visitor state, or ErrNotFound (wrapped).
func (s *PostgresStore) Load(ctx context.Context, code string) (visitor.State, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM splitz_visitors WHERE code = $1
	`, code).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return visitor.State{}, fmt.Errorf("load visitor %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return visitor.State{}, fmt.Errorf("load visitor: %w", err)
	}

	var state visitor.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return visitor.State{}, fmt.Errorf("decode visitor state: %w", err)
	}

	return state, nil
}

// Delete removes the visitor state row. Absent rows are not an error.
func (s *PostgresStore) Delete(ctx context.Context, code string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM splitz_visitors WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("delete visitor: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

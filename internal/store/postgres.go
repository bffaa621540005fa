package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"sleepalarm/internal/model"
)

const (
	rowSnapshot   = "latest"
	rowTriggerLog = "trigger_log"

	createTableSQL = `
CREATE TABLE IF NOT EXISTS sleepalarm_state (
	name       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectStateSQL = `SELECT payload FROM sleepalarm_state WHERE name = $1`

	upsertStateSQL = `
INSERT INTO sleepalarm_state (name, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
)

// PostgresStore keeps one JSONB row per state kind.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens the DSN with lib/pq, pings and ensures the table.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	s := NewPostgresStoreWithDB(db, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an open handle.
func NewPostgresStoreWithDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := s.load(ctx, rowSnapshot, &snap); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	return s.save(ctx, rowSnapshot, snap)
}

func (s *PostgresStore) LoadTriggerLog(ctx context.Context) (model.TriggerLogState, error) {
	var st model.TriggerLogState
	if err := s.load(ctx, rowTriggerLog, &st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.TriggerLogState{}, nil
		}
		return model.TriggerLogState{}, err
	}
	return st, nil
}

func (s *PostgresStore) SaveTriggerLog(ctx context.Context, st model.TriggerLogState) error {
	return s.save(ctx, rowTriggerLog, st)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) load(ctx context.Context, name string, dest any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx, selectStateSQL, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: select %s: %w", name, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("store: decode %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) save(ctx context.Context, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, upsertStateSQL, name, payload); err != nil {
		s.logger.Error("state upsert failed", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("store: upsert %s: %w", name, err)
	}
	return nil
}

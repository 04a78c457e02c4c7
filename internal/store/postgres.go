package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shubh-37/postpilot/internal/models"
)

// PostgresStore implements Store on a pgx connection pool. Each entity is
// one row: id, the full entity as JSONB, and the version column used for
// the optimistic-concurrency check.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Println("✅ Database connected successfully")
	return &PostgresStore{pool: pool}, nil
}

// CreateTables creates the session and run tables.
func (p *PostgresStore) CreateTables(ctx context.Context) error {
	log.Println("Creating database tables...")

	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		data JSONB NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions((data->>'state'));
	`

	runsTable := `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id UUID PRIMARY KEY,
		data JSONB NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON pipeline_runs((data->>'state'));
	`

	for _, table := range []string{sessionsTable, runsTable} {
		if _, err := p.pool.Exec(ctx, table); err != nil {
			return err
		}
	}

	log.Println("✅ All tables created successfully")
	return nil
}

func (p *PostgresStore) CreateSession(ctx context.Context, s *models.Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1
	return p.create(ctx, "sessions", s.ID, s, s.Version)
}

func (p *PostgresStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := p.load(ctx, "sessions", id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, s *models.Session) error {
	prior := s.Version
	s.Version++
	s.UpdatedAt = time.Now()
	if err := p.save(ctx, "sessions", s.ID, s, prior); err != nil {
		s.Version = prior
		return err
	}
	return nil
}

func (p *PostgresStore) CreateRun(ctx context.Context, r *models.PipelineRun) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return p.create(ctx, "pipeline_runs", r.ID, r, r.Version)
}

func (p *PostgresStore) LoadRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	var r models.PipelineRun
	if err := p.load(ctx, "pipeline_runs", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) SaveRun(ctx context.Context, r *models.PipelineRun) error {
	prior := r.Version
	r.Version++
	r.UpdatedAt = time.Now()
	if err := p.save(ctx, "pipeline_runs", r.ID, r, prior); err != nil {
		r.Version = prior
		return err
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	log.Println("Database connection closed")
	return nil
}

// Health checks if the database is reachable.
func (p *PostgresStore) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) create(ctx context.Context, table, id string, entity any, version int64) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, data, version) VALUES ($1, $2, $3)`, table)
	if _, err := p.pool.Exec(ctx, query, id, data, version); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (p *PostgresStore) load(ctx context.Context, table, id string, entity any) error {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, table)

	var data []byte
	err := p.pool.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	if err := json.Unmarshal(data, entity); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// save applies the optimistic-concurrency check: the row is updated only
// when its version still matches the version the caller loaded.
func (p *PostgresStore) save(ctx context.Context, table, id string, entity any, priorVersion int64) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET data = $2, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND version = $3`,
		table)
	result, err := p.pool.Exec(ctx, query, id, data, priorVersion)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		checkQuery := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)
		if err := p.pool.QueryRow(ctx, checkQuery, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check record: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dailyform/internal/form"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements FactStore using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS form_facts (
	form_key   TEXT PRIMARY KEY,
	form_type  TEXT NOT NULL,
	form_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	facts      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_form_facts_type_id ON form_facts(form_type, form_id);
CREATE INDEX IF NOT EXISTS idx_form_facts_updated_at ON form_facts(updated_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key form.Key) (map[string]any, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT facts FROM form_facts WHERE form_key = $1`, key.String(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: load facts %s", key)
	}
	facts, err := decodeFacts(raw)
	if err != nil {
		return nil, false, err
	}
	return facts, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, key form.Key, facts map[string]any) error {
	raw, err := encodeFacts(facts)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO form_facts (form_key, form_type, form_id, run_id, facts, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (form_key) DO UPDATE SET
		 	run_id = EXCLUDED.run_id,
		 	facts = EXCLUDED.facts,
		 	updated_at = EXCLUDED.updated_at`,
		key.String(), key.Type, key.ID, uuid.New().String(), raw, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save facts %s", key)
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT form_key, form_type, form_id, run_id, facts, updated_at
		 FROM form_facts ORDER BY updated_at DESC, form_key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facts")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r   Record
			raw []byte
		)
		if err := rows.Scan(&r.Key, &r.FormType, &r.FormID, &r.RunID, &raw, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan facts")
		}
		if r.Facts, err = decodeFacts(raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list facts iterate")
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dailyform/internal/form"
)

// SQLiteStore implements FactStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS form_facts (
	form_key   TEXT PRIMARY KEY,
	form_type  TEXT NOT NULL,
	form_id    TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	facts      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_form_facts_type_id ON form_facts(form_type, form_id);
CREATE INDEX IF NOT EXISTS idx_form_facts_updated_at ON form_facts(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, key form.Key) (map[string]any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT facts FROM form_facts WHERE form_key = ?`, key.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: load facts %s", key)
	}
	facts, err := decodeFacts([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return facts, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key form.Key, facts map[string]any) error {
	raw, err := encodeFacts(facts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO form_facts (form_key, form_type, form_id, run_id, facts, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(form_key) DO UPDATE SET
		 	run_id = excluded.run_id,
		 	facts = excluded.facts,
		 	updated_at = excluded.updated_at`,
		key.String(), key.Type, key.ID, uuid.New().String(), string(raw), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save facts %s", key)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT form_key, form_type, form_id, run_id, facts, updated_at
		 FROM form_facts ORDER BY updated_at DESC, form_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		var (
			r   Record
			raw string
		)
		if err := rows.Scan(&r.Key, &r.FormType, &r.FormID, &r.RunID, &raw, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facts")
		}
		if r.Facts, err = decodeFacts([]byte(raw)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

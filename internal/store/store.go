// Package store persists each form's facts between runs so failed sources can
// be recovered from the last good values.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dailyform/internal/form"
)

// Record is one persisted facts mapping.
type Record struct {
	Key       string         `json:"key"`
	FormType  string         `json:"form_type"`
	FormID    string         `json:"form_id"`
	RunID     string         `json:"run_id"`
	Facts     map[string]any `json:"facts"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FactStore is a durable key-value store of facts keyed by form.
type FactStore interface {
	// Load returns the facts last saved for key. ok is false when nothing
	// was saved yet.
	Load(ctx context.Context, key form.Key) (facts map[string]any, ok bool, err error)
	// Save replaces the facts stored for key.
	Save(ctx context.Context, key form.Key, facts map[string]any) error
	// List returns every record, most recently updated first.
	List(ctx context.Context) ([]Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (FactStore, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "dailyform.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

func encodeFacts(facts map[string]any) ([]byte, error) {
	if facts == nil {
		facts = map[string]any{}
	}
	b, err := json.Marshal(facts)
	return b, eris.Wrap(err, "store: marshal facts")
}

func decodeFacts(b []byte) (map[string]any, error) {
	var facts map[string]any
	if err := json.Unmarshal(b, &facts); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal facts")
	}
	return facts, nil
}

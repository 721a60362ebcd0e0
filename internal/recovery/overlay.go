// Package recovery substitutes persisted facts for sources that failed in
// the current run and writes each run's facts back for the next one.
package recovery

import (
	"context"
	"maps"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/store"
)

// Overlay implements form.Recoverer on top of a FactStore.
type Overlay struct {
	store store.FactStore
}

// New creates an overlay over st.
func New(st store.FactStore) *Overlay {
	return &Overlay{store: st}
}

// Recover returns the persisted value of every key in errKeys that has one.
func (o *Overlay) Recover(ctx context.Context, key form.Key, errKeys []string) (map[string]any, error) {
	saved, ok, err := o.store.Load(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "recovery: load %s", key)
	}
	out := make(map[string]any, len(errKeys))
	if !ok {
		return out, nil
	}
	for _, k := range errKeys {
		if v, found := saved[k]; found {
			out[k] = v
		}
	}
	zap.L().Debug("recovery: lookup",
		zap.Stringer("key", key),
		zap.Strings("errors", errKeys),
		zap.Int("recovered", len(out)),
	)
	return out, nil
}

// Persist merges the form's facts layer over what is stored for its key.
// Keys missing from this run (a source failed and nothing was recovered)
// keep their stored values. Corrupt forms are not persisted.
func (o *Overlay) Persist(ctx context.Context, f *form.Form) error {
	if f.IsCorrupt() {
		zap.L().Warn("recovery: skipping write-back of corrupt form", zap.Stringer("key", f.Key()))
		return nil
	}

	merged, _, err := o.store.Load(ctx, f.Key())
	if err != nil {
		return eris.Wrapf(err, "recovery: load %s", f.Key())
	}
	if merged == nil {
		merged = make(map[string]any)
	}
	maps.Copy(merged, f.Layer(form.LayerFacts))

	if err := o.store.Save(ctx, f.Key(), merged); err != nil {
		return eris.Wrapf(err, "recovery: save %s", f.Key())
	}
	zap.L().Debug("recovery: persisted facts", zap.Stringer("key", f.Key()), zap.Int("facts", len(merged)))
	return nil
}

package form

import (
	"context"
	"encoding/json"
	"fmt"
)

// Capability contributes one domain of facts to a form. The lifecycle calls
// capabilities in the order they were composed; a capability never decides
// control flow on its own. Fetch errors are recorded by the form and the
// pipeline carries on in a degraded state.
type Capability interface {
	// Name is the fact key the capability owns (e.g. "weather").
	Name() string
	// Default is the placeholder shown when no fact could be produced.
	Default() string
	// Prerequisite names the fact that must exist before Fetch, or "".
	Prerequisite() string
	// ResolvePrerequisite looks up the prerequisite fact when it is absent.
	ResolvePrerequisite(ctx context.Context, f *Form) (any, bool)
	// Fetch retrieves the capability's fact from its remote source.
	Fetch(ctx context.Context, f *Form) (any, error)
	// FormatOne renders the fact for display. ok is false when there is
	// nothing to show and the default should be used instead.
	FormatOne(f *Form) (s string, ok bool)
}

// Analyzer is implemented by capabilities that derive analysis values from
// their raw facts.
type Analyzer interface {
	Analyze(f *Form) map[string]any
}

// Recoverer supplies previously persisted facts for sources that failed in
// the current run.
type Recoverer interface {
	Recover(ctx context.Context, key Key, errKeys []string) (map[string]any, error)
}

// Key identifies a form across runs.
type Key struct {
	Type string
	ID   string
}

// String renders the composite key as a tuple, e.g. ('DailyForm', 'Andy').
func (k Key) String() string {
	return fmt.Sprintf("('%s', '%s')", k.Type, k.ID)
}

// As converts a fact value into T. Values that went through persistence come
// back as generic JSON shapes, so a failed type assertion falls back to a JSON
// round trip.
func As[T any](v any) (T, bool) {
	var zero T
	if v == nil {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false
	}
	return out, true
}

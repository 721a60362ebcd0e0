package form

import (
	"fmt"
	"maps"
	"time"
)

// DateLayout is the calendar-date format used for form dates and forecast keys.
const DateLayout = "2006-01-02"

// View is a read-only snapshot of a form's composed facts. Renderers consume
// a View rather than the live Form.
type View struct {
	keys   []string
	values map[string]any
}

// NewView builds a View from a plain mapping. Mostly useful in tests.
func NewView(values map[string]any) View {
	f := NewFacts()
	for k, v := range values {
		f.Set(LayerFacts, k, v)
	}
	return f.View()
}

// Get returns the value for key.
func (v View) Get(key string) (any, bool) {
	val, ok := v.values[key]
	return val, ok
}

// String returns the display string for key, or "" when the key is absent.
func (v View) String(key string) string {
	val, ok := v.values[key]
	if !ok {
		return ""
	}
	return Display(val)
}

// Keys returns the sorted keys of the snapshot.
func (v View) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len returns the number of keys in the snapshot.
func (v View) Len() int { return len(v.keys) }

// Map returns a copy of the underlying mapping.
func (v View) Map() map[string]any {
	return maps.Clone(v.values)
}

// Display renders a fact value for humans. Dates print as calendar dates.
func Display(val any) string {
	switch t := val.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(DateLayout)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

package form

import (
	"maps"
	"slices"
)

// Layer names one of the mappings inside a Facts store.
type Layer int

const (
	LayerDefaults Layer = iota
	LayerFacts
	LayerAnalysis
	LayerFormatted
)

func (l Layer) String() string {
	switch l {
	case LayerDefaults:
		return "defaults"
	case LayerFacts:
		return "facts"
	case LayerAnalysis:
		return "analysis"
	case LayerFormatted:
		return "formatted"
	default:
		return "unknown"
	}
}

// precedence lists layers from highest to lowest lookup priority.
var precedence = [...]Layer{LayerFormatted, LayerAnalysis, LayerFacts, LayerDefaults}

// Facts is a four-layer associative store. Reads through Get see the layers
// composed by precedence (formatted > analysis > facts > defaults); writes
// always name their layer explicitly.
type Facts struct {
	layers [4]map[string]any
}

// NewFacts returns an empty store.
func NewFacts() *Facts {
	f := &Facts{}
	for i := range f.layers {
		f.layers[i] = make(map[string]any)
	}
	return f
}

// Set writes value under key in the named layer only.
func (f *Facts) Set(layer Layer, key string, value any) {
	f.layers[layer][key] = value
}

// Delete removes key from the named layer.
func (f *Facts) Delete(layer Layer, key string) {
	delete(f.layers[layer], key)
}

// Lookup reads key from a single layer without composition.
func (f *Facts) Lookup(layer Layer, key string) (any, bool) {
	v, ok := f.layers[layer][key]
	return v, ok
}

// Get returns the composed value for key.
func (f *Facts) Get(key string) (any, bool) {
	for _, l := range precedence {
		if v, ok := f.layers[l][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Keys returns the sorted union of keys across all layers.
func (f *Facts) Keys() []string {
	seen := make(map[string]struct{})
	for _, m := range f.layers {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Len returns the number of distinct keys across all layers.
func (f *Facts) Len() int {
	return len(f.Keys())
}

// Layer returns a shallow copy of one layer.
func (f *Facts) Layer(layer Layer) map[string]any {
	return maps.Clone(f.layers[layer])
}

// View snapshots the composed mapping.
func (f *Facts) View() View {
	keys := f.Keys()
	values := make(map[string]any, len(keys))
	for _, k := range keys {
		values[k], _ = f.Get(k)
	}
	return View{keys: keys, values: values}
}

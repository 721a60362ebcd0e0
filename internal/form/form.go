package form

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds a single capability fetch.
const DefaultFetchTimeout = 10 * time.Second

// Renderer turns a composed view into the final report text.
type Renderer interface {
	Render(view View) (string, error)
}

// Option configures a Form at construction.
type Option func(*Form)

// WithCapabilities composes capabilities onto the form, in call order.
func WithCapabilities(caps ...Capability) Option {
	return func(f *Form) {
		f.caps = append(f.caps, caps...)
	}
}

// WithSimulatedFailures makes the named capabilities fail during prepare
// without contacting their source.
func WithSimulatedFailures(names ...string) Option {
	return func(f *Form) {
		for _, n := range names {
			f.simulate[n] = true
		}
	}
}

// WithRecovery installs the overlay consulted for failed sources at analyze.
func WithRecovery(r Recoverer) Option {
	return func(f *Form) {
		f.recoverer = r
	}
}

// WithClock sets the clock used to default the form date.
func WithClock(now func() time.Time) Option {
	return func(f *Form) {
		f.now = now
	}
}

// WithFetchTimeout sets the per-call fetch timeout. Zero disables it.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Form) {
		f.fetchTimeout = d
	}
}

// WithConcurrentFetch runs independent capability fetches in parallel.
func WithConcurrentFetch(on bool) Option {
	return func(f *Form) {
		f.concurrent = on
	}
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Form) {
		f.log = l
	}
}

// Form is one unit of report generation for one identity and date.
type Form struct {
	key   Key
	date  time.Time
	state State
	facts *Facts
	errs  map[string]string
	err   error

	caps         []Capability
	simulate     map[string]bool
	recoverer    Recoverer
	fetchTimeout time.Duration
	concurrent   bool
	now          func() time.Time
	log          *zap.Logger
}

// New creates a form in StateNew. A zero date means today. Composition
// defects (duplicate or reserved capability keys) leave the form corrupt;
// Err reports why.
func New(formType, formID string, date time.Time, opts ...Option) *Form {
	f := &Form{
		key:          Key{Type: formType, ID: formID},
		state:        StateNew,
		facts:        NewFacts(),
		errs:         make(map[string]string),
		simulate:     make(map[string]bool),
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = zap.L()
	}
	f.log = f.log.With(zap.String("form_type", formType), zap.String("form_id", formID))

	if date.IsZero() {
		date = f.now()
	}
	f.date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	f.facts.Set(LayerFacts, KeyFormType, formType)
	f.facts.Set(LayerFacts, KeyFormID, formID)
	f.facts.Set(LayerFacts, KeyFormDate, f.date)

	if err := f.compose(); err != nil {
		f.MarkCorrupt(err)
		return f
	}
	f.checkSimulated()
	return f
}

// checkSimulated warns about simulated failures that name no composed
// capability; they would otherwise have no effect at all.
func (f *Form) checkSimulated() {
	for _, n := range slices.Sorted(maps.Keys(f.simulate)) {
		if !slices.ContainsFunc(f.caps, func(c Capability) bool { return c.Name() == n }) {
			f.log.Warn("form: simulated failure names no capability", zap.String("capability", n))
		}
	}
}

func (f *Form) compose() error {
	seen := make(map[string]bool, len(f.caps))
	for _, c := range f.caps {
		name := c.Name()
		if name == "" {
			return eris.New("form: capability with empty name")
		}
		if IsReserved(name) {
			return eris.Wrapf(ErrReservedKey, "form: capability %q", name)
		}
		if IsReserved(c.Prerequisite()) {
			return eris.Wrapf(ErrReservedKey, "form: capability %q prerequisite %q", name, c.Prerequisite())
		}
		if seen[name] {
			return eris.Wrapf(ErrDuplicateCapability, "form: capability %q", name)
		}
		seen[name] = true
		f.facts.Set(LayerDefaults, name, c.Default())
	}
	return nil
}

// Prepare resolves prerequisites and fetches every capability's facts.
// Missing prerequisites and fetch failures never surface as errors: they are
// recorded in Errors (fetch failures only) and degrade the form to
// StatePartialPrep. Facts that are already resolved and sources that already
// failed are not fetched again.
func (f *Form) Prepare(ctx context.Context, partial bool) error {
	if f.IsCorrupt() {
		return f.corruptErr("prepare")
	}

	var pending []Capability
	for _, c := range f.caps {
		name := c.Name()
		if _, done := f.facts.Lookup(LayerFacts, name); done {
			continue
		}
		if _, failed := f.errs[name]; failed {
			partial = true
			continue
		}
		if p := c.Prerequisite(); p != "" {
			if _, ok := f.facts.Lookup(LayerFacts, p); !ok {
				v, ok := c.ResolvePrerequisite(ctx, f)
				if !ok {
					f.log.Debug("form: prerequisite unavailable",
						zap.String("capability", name),
						zap.String("prerequisite", p),
					)
					partial = true
					continue
				}
				f.facts.Set(LayerFacts, p, v)
			}
		}
		if f.simulate[name] {
			f.recordError(name, UnableToRetrieve)
			partial = true
			continue
		}
		pending = append(pending, c)
	}

	results := f.fetchAll(ctx, pending)
	for i, c := range pending {
		r := results[i]
		if r.err != nil {
			f.recordError(c.Name(), r.err.Error())
			partial = true
			continue
		}
		f.facts.Set(LayerFacts, c.Name(), r.value)
	}

	switch {
	case f.state > StatePrepared:
		// Already past prepare; later stages keep their state.
	case partial:
		f.state = StatePartialPrep
	default:
		f.state = StatePrepared
	}
	f.log.Debug("form: prepared", zap.Stringer("state", f.state), zap.Int("errors", len(f.errs)))
	return nil
}

type fetchResult struct {
	value any
	err   error
}

func (f *Form) fetchAll(ctx context.Context, caps []Capability) []fetchResult {
	results := make([]fetchResult, len(caps))
	fetch := func(i int) {
		cctx := ctx
		if f.fetchTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, f.fetchTimeout)
			defer cancel()
		}
		start := time.Now()
		v, err := caps[i].Fetch(cctx, f)
		f.log.Debug("form: fetch",
			zap.String("capability", caps[i].Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Bool("ok", err == nil),
		)
		results[i] = fetchResult{value: v, err: err}
	}

	if !f.concurrent || len(caps) < 2 {
		for i := range caps {
			fetch(i)
		}
		return results
	}

	var g errgroup.Group
	for i := range caps {
		g.Go(func() error {
			fetch(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Form) recordError(name, msg string) {
	if _, exists := f.errs[name]; exists {
		return
	}
	f.errs[name] = msg
	f.log.Warn("form: source failed",
		zap.String("capability", name),
		zap.String("error", msg),
	)
}

// Analyze derives analysis values, preparing first if needed. Failed sources
// are offered to the recovery overlay before analyzers run.
func (f *Form) Analyze(ctx context.Context) error {
	if f.IsCorrupt() {
		return f.corruptErr("analyze")
	}
	if !f.IsPrepared() {
		if err := f.Prepare(ctx, false); err != nil {
			return err
		}
	}

	f.recover(ctx)

	for _, c := range f.caps {
		a, ok := c.(Analyzer)
		if !ok {
			continue
		}
		derived := a.Analyze(f)
		for _, k := range slices.Sorted(maps.Keys(derived)) {
			if IsReserved(k) {
				return f.MarkCorrupt(eris.Wrapf(ErrReservedKey, "form: analysis from %q wrote %q", c.Name(), k))
			}
			f.facts.Set(LayerAnalysis, k, derived[k])
		}
	}

	f.advance(StateAnalyzed)
	return nil
}

func (f *Form) recover(ctx context.Context) {
	if f.recoverer == nil || len(f.errs) == 0 {
		return
	}
	errKeys := slices.Sorted(maps.Keys(f.errs))
	vals, err := f.recoverer.Recover(ctx, f.key, errKeys)
	if err != nil {
		f.log.Warn("form: recovery lookup failed", zap.Error(err))
		return
	}
	for _, k := range errKeys {
		if v, ok := vals[k]; ok {
			f.facts.Set(LayerFacts, k, v)
			f.log.Info("form: recovered persisted fact", zap.String("key", k))
		}
	}
}

// Format renders each capability's display string, analyzing first if
// needed. Capabilities with nothing to show fall back to their default.
func (f *Form) Format(ctx context.Context) error {
	if f.IsCorrupt() {
		return f.corruptErr("format")
	}
	if !f.IsAnalyzed() {
		if err := f.Analyze(ctx); err != nil {
			return err
		}
	}

	// The default is written explicitly so a raw fact with nothing to show
	// (an empty task list) never surfaces in the view.
	for _, c := range f.caps {
		s, ok := c.FormatOne(f)
		if !ok {
			s = c.Default()
		}
		f.facts.Set(LayerFormatted, c.Name(), s)
	}

	f.advance(StateFormatted)
	return nil
}

// Run executes prepare, analyze and format, skipping any stage that is
// already satisfied.
func (f *Form) Run(ctx context.Context) error {
	if f.IsCorrupt() {
		return f.corruptErr("run")
	}
	if !f.IsPrepared() {
		if err := f.Prepare(ctx, false); err != nil {
			return err
		}
	}
	if !f.IsAnalyzed() {
		if err := f.Analyze(ctx); err != nil {
			return err
		}
	}
	if !f.IsFormatted() {
		return f.Format(ctx)
	}
	return nil
}

// Render completes the pipeline if needed and renders the composed view.
// Template errors are returned as-is and leave the state unchanged.
func (f *Form) Render(ctx context.Context, r Renderer) (string, error) {
	if f.IsCorrupt() {
		return "", f.corruptErr("render")
	}
	if !f.IsFormatted() {
		if err := f.Run(ctx); err != nil {
			return "", err
		}
	}
	out, err := r.Render(f.View())
	if err != nil {
		return "", eris.Wrap(err, "form: render")
	}
	f.advance(StateRendered)
	return out, nil
}

func (f *Form) advance(to State) {
	if f.state < to {
		f.state = to
	}
}

// MarkCorrupt moves the form to its terminal corrupt state and returns err.
func (f *Form) MarkCorrupt(err error) error {
	if f.err == nil {
		f.err = err
	}
	f.state = StateCorrupt
	f.log.Error("form: corrupt", zap.Error(err))
	return err
}

func (f *Form) corruptErr(stage string) error {
	if f.err != nil {
		return eris.Wrapf(ErrCorrupt, "form: %s: %v", stage, f.err)
	}
	return eris.Wrapf(ErrCorrupt, "form: %s", stage)
}

// SetFact writes a raw fact, e.g. a location override before prepare.
func (f *Form) SetFact(key string, value any) error {
	if IsReserved(key) {
		return eris.Wrapf(ErrReservedKey, "form: set %q", key)
	}
	f.facts.Set(LayerFacts, key, value)
	return nil
}

// Fact reads the raw facts layer only.
func (f *Form) Fact(key string) (any, bool) { return f.facts.Lookup(LayerFacts, key) }

// Get reads the composed view.
func (f *Form) Get(key string) (any, bool) { return f.facts.Get(key) }

// Keys returns all keys across layers.
func (f *Form) Keys() []string { return f.facts.Keys() }

// Len returns the number of distinct keys across layers.
func (f *Form) Len() int { return f.facts.Len() }

// View snapshots the composed mapping for rendering.
func (f *Form) View() View { return f.facts.View() }

// Layer returns a copy of one layer.
func (f *Form) Layer(l Layer) map[string]any { return f.facts.Layer(l) }

// Errors returns a copy of the recorded source failures.
func (f *Form) Errors() map[string]string { return maps.Clone(f.errs) }

func (f *Form) Key() Key        { return f.key }
func (f *Form) ID() string      { return f.key.ID }
func (f *Form) Date() time.Time { return f.date }
func (f *Form) State() State    { return f.state }
func (f *Form) Err() error      { return f.err }

func (f *Form) IsCorrupt() bool   { return f.state >= StateCorrupt }
func (f *Form) IsPrepared() bool  { return f.state >= StatePrepared && !f.IsCorrupt() }
func (f *Form) IsAnalyzed() bool  { return f.state >= StateAnalyzed && !f.IsCorrupt() }
func (f *Form) IsFormatted() bool { return f.state >= StateFormatted && !f.IsCorrupt() }

package recovery

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/render"
	"github.com/sells-group/dailyform/internal/store"
)

var (
	day  = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	andy = form.Key{Type: "DailyForm", ID: "Andy"}
)

// quoteCap fetches a fixed string.
type quoteCap struct {
	name  string
	value string
}

func (c quoteCap) Name() string         { return c.name }
func (c quoteCap) Default() string      { return "No " + c.name }
func (c quoteCap) Prerequisite() string { return "" }
func (c quoteCap) ResolvePrerequisite(context.Context, *form.Form) (any, bool) {
	return nil, false
}
func (c quoteCap) Fetch(context.Context, *form.Form) (any, error) { return c.value, nil }
func (c quoteCap) FormatOne(f *form.Form) (string, bool) {
	v, ok := f.Fact(c.name)
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, key form.Key) (map[string]any, bool, error) {
	args := m.Called(ctx, key)
	facts, _ := args.Get(0).(map[string]any)
	return facts, args.Bool(1), args.Error(2)
}

func (m *mockStore) Save(ctx context.Context, key form.Key, facts map[string]any) error {
	return m.Called(ctx, key, facts).Error(0)
}

func (m *mockStore) List(ctx context.Context) ([]store.Record, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]store.Record)
	return recs, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }

func newSQLite(t *testing.T) store.FactStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newForm(o *Overlay, fail ...string) *form.Form {
	return form.New("DailyForm", "Andy", day,
		form.WithCapabilities(
			quoteCap{name: "weather", value: "48 degrees F Rain"},
			quoteCap{name: "todo", value: "Buy milk"},
		),
		form.WithSimulatedFailures(fail...),
		form.WithRecovery(o),
	)
}

func TestRecover_NothingStored(t *testing.T) {
	o := New(newSQLite(t))

	got, err := o.Recover(context.Background(), andy, []string{"weather"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecover_OnlyErrorKeys(t *testing.T) {
	st := newSQLite(t)
	require.NoError(t, st.Save(context.Background(), andy, map[string]any{
		"weather": "old weather",
		"todo":    "old todo",
	}))

	got, err := New(st).Recover(context.Background(), andy, []string{"weather", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"weather": "old weather"}, got)
}

func TestRecover_LoadError(t *testing.T) {
	st := new(mockStore)
	st.On("Load", mock.Anything, andy).Return(nil, false, assert.AnError)

	_, err := New(st).Recover(context.Background(), andy, []string{"weather"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	st.AssertExpectations(t)
}

func TestPersist_MergesOverStored(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, andy, map[string]any{"weather": "old weather", "todo": "old todo"}))

	o := New(st)
	f := newForm(o, "weather")
	// Nothing recovered would leave weather absent; stored weather is kept.
	require.NoError(t, f.Prepare(ctx, false))
	require.NoError(t, o.Persist(ctx, f))

	saved, ok, err := st.Load(ctx, andy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old weather", saved["weather"])
	assert.Equal(t, "Buy milk", saved["todo"])
	assert.Equal(t, "Andy", saved["form_id"])
}

func TestPersist_SkipsCorrupt(t *testing.T) {
	st := new(mockStore)
	o := New(st)

	f := newForm(o)
	f.MarkCorrupt(assert.AnError) //nolint:errcheck

	require.NoError(t, o.Persist(context.Background(), f))
	st.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersist_SaveError(t *testing.T) {
	st := new(mockStore)
	st.On("Load", mock.Anything, andy).Return(nil, false, nil)
	st.On("Save", mock.Anything, andy, mock.Anything).Return(assert.AnError)

	o := New(st)
	err := o.Persist(context.Background(), newForm(o))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovery: save")
}

func TestRender_RecoversAcrossRuns(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	tmpl := render.MustText("{weather}|{todo}")

	// First run succeeds and is written back.
	o := New(st)
	out, err := Render(ctx, o, newForm(o), tmpl)
	require.NoError(t, err)
	assert.Equal(t, "48 degrees F Rain|Buy milk", out)

	// Second run loses weather and gets the persisted value instead.
	f := newForm(o, "weather")
	out, err = Render(ctx, o, f, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "48 degrees F Rain|Buy milk", out)
	assert.Contains(t, f.Errors(), "weather")
	assert.Equal(t, form.StateRendered, f.State())
}

func TestRender_DefaultsWithoutHistory(t *testing.T) {
	o := New(newSQLite(t))

	out, err := Render(context.Background(), o, newForm(o, "weather", "todo"), render.MustText("{weather}|{todo}"))
	require.NoError(t, err)
	assert.Equal(t, "No weather|No todo", out)
}

func TestRender_WritesBackOnError(t *testing.T) {
	st := new(mockStore)
	st.On("Load", mock.Anything, andy).Return(nil, false, nil)
	st.On("Save", mock.Anything, andy, mock.Anything).Return(nil).Once()

	o := New(st)
	_, err := Render(context.Background(), o, newForm(o), failingRenderer{})
	require.Error(t, err)
	st.AssertExpectations(t)
}

func TestRender_WriteBackErrorSurfaces(t *testing.T) {
	st := new(mockStore)
	st.On("Load", mock.Anything, andy).Return(nil, false, nil)
	st.On("Save", mock.Anything, andy, mock.Anything).Return(assert.AnError)

	o := New(st)
	out, err := Render(context.Background(), o, newForm(o), render.MustText("{todo}"))
	require.Error(t, err)
	assert.Equal(t, "Buy milk", out)
}

func TestScope_CloseOnce(t *testing.T) {
	st := new(mockStore)
	st.On("Load", mock.Anything, andy).Return(nil, false, nil)
	st.On("Save", mock.Anything, andy, mock.Anything).Return(nil).Once()

	o := New(st)
	s := o.Open(newForm(o))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	st.AssertExpectations(t)
}

type failingRenderer struct{}

func (failingRenderer) Render(form.View) (string, error) { return "", assert.AnError }

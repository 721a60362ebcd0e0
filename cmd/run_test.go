package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dailyform/internal/render"
	"github.com/sells-group/dailyform/internal/source"
	"github.com/sells-group/dailyform/internal/store"
)

func TestRunReport_Scenarios(t *testing.T) {
	env, fs := newTestEnv(t)
	ctx := context.Background()

	run := func(req formRequest) string {
		t.Helper()
		req.ID = "Andy"
		req.Date = reportDate
		out, err := env.runReport(ctx, reportRequest{formRequest: req, Twice: true})
		require.NoError(t, err)
		return out
	}

	// Weather fails with nothing persisted yet.
	out := run(formRequest{Failures: []string{source.KeyWeather}})
	assert.Equal(t, "DailyForm for Andy\n=====\nNo weather\nBuy milk\nCall mom", out)
	assert.Equal(t, int32(0), fs.forecasts.Load())

	// Explicit zip reaches the forecast API.
	out = run(formRequest{Zip: "10001"})
	assert.Equal(t, "DailyForm for Andy\n=====\n48 degrees F Partly Cloudy\nBuy milk\nCall mom", out)
	assert.Equal(t, "10001", fs.lastZip.Load())

	// Resolved zip.
	run(formRequest{})
	assert.Equal(t, "07307", fs.lastZip.Load())

	// Weather fails again and is recovered from the store.
	out = run(formRequest{Failures: []string{source.KeyWeather}})
	assert.Equal(t, "DailyForm for Andy\n=====\n48 degrees F Partly Cloudy\nBuy milk\nCall mom", out)
	assert.Equal(t, int32(2), fs.forecasts.Load(), "twice-prepare never refetches")
}

func TestRunReport_HTML(t *testing.T) {
	env, _ := newTestEnv(t)

	out, err := env.runReport(context.Background(), reportRequest{
		formRequest: formRequest{ID: "Andy", Date: reportDate},
		HTML:        true,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>DailyForm for Andy</h1>")
	assert.Contains(t, out, "<li>Call mom</li>")
}

func TestRunReport_CustomTemplate(t *testing.T) {
	env, _ := newTestEnv(t)
	env.Template = "{form_id}: {todo_count} tasks, low {weather_low_f}"

	out, err := env.runReport(context.Background(), reportRequest{
		formRequest: formRequest{ID: "Andy", Date: reportDate},
	})
	require.NoError(t, err)
	assert.Equal(t, "Andy: 2 tasks, low 48", out)
}

func TestRunReport_BadTemplate(t *testing.T) {
	env, _ := newTestEnv(t)
	env.Template = "{unclosed"

	_, err := env.runReport(context.Background(), reportRequest{
		formRequest: formRequest{ID: "Andy", Date: reportDate},
	})
	require.Error(t, err)
}

func TestRunReport_PersistsFacts(t *testing.T) {
	env, _ := newTestEnv(t)
	ctx := context.Background()

	_, err := env.runReport(ctx, reportRequest{formRequest: formRequest{ID: "Andy", Date: reportDate}})
	require.NoError(t, err)

	recs, err := env.Store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "('DailyForm', 'Andy')", recs[0].Key)
	assert.Equal(t, "07307", recs[0].Facts[source.KeyZipCode])
	assert.Equal(t, []any{"Buy milk", "Call mom"}, recs[0].Facts[source.KeyTodo])
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.October, d.Month())
	assert.Equal(t, 19, d.Day())

	_, err = parseDate("19/10/2026")
	assert.Error(t, err)
}

func TestFailures(t *testing.T) {
	assert.Nil(t, failures(false, false))
	assert.Equal(t, []string{"weather", "todo"}, failures(true, true))
	assert.Equal(t, []string{"todo"}, failures(false, true))
}

func TestNewEnv_ToodledoLoginAndIdentity(t *testing.T) {
	fs := newFakeSources(t)
	c := testConfig(fs)
	c.Toodledo.Username = "me@example.com"
	c.Directory.User = "Andy"

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))
	env := newEnv(c, st)
	t.Cleanup(env.Close)

	user, ok := env.User.Username(t.Context(), "Andy")
	require.True(t, ok)
	assert.Equal(t, "Andy", user)

	out, err := env.runReport(t.Context(), reportRequest{formRequest: formRequest{ID: "Andy", Date: reportDate}})
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")
	assert.Equal(t, "me@example.com", fs.lastEmail.Load())
}

func TestRunDemo(t *testing.T) {
	env, _ := newTestEnv(t)

	var buf bytes.Buffer
	require.NoError(t, env.runDemo(t.Context(), &buf, "Andy"))

	out := buf.String()
	assert.Contains(t, out, "# 1. weather fails, nothing persisted")
	assert.Contains(t, out, "# 4. weather fails, recovered")
	assert.Contains(t, out, "Buy milk\nCall mom")
}

func TestRunDemo_WrapsScenarioError(t *testing.T) {
	env, _ := newTestEnv(t)
	env.Template = "{unclosed"

	err := env.runDemo(t.Context(), io.Discard, "Andy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario 1 (weather fails, nothing persisted)")
	assert.True(t, errors.Is(err, render.ErrTemplateSyntax))
}

func TestDemoScenarios(t *testing.T) {
	require.Len(t, demoScenarios, 4)
	assert.Equal(t, []string{source.KeyWeather}, demoScenarios[0].req.Failures)
	assert.Equal(t, "10001", demoScenarios[1].req.Zip)
	assert.Equal(t, demoScenarios[0].req, demoScenarios[3].req)
}

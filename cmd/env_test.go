package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/dailyform/internal/config"
	"github.com/sells-group/dailyform/internal/store"
)

var reportDate = time.Date(2026, 10, 19, 0, 0, 0, 0, time.Local)

const testForecast = `{
  "response": {},
  "forecast": {"simpleforecast": {"forecastday": [
    {"date": {"day": 19, "month": 10, "year": 2026}, "low": {"fahrenheit": "48"}, "high": {"fahrenheit": "61"}, "conditions": "Partly Cloudy"}
  ]}}
}`

// fakeSources stands in for the forecast and task APIs.
type fakeSources struct {
	weather  *httptest.Server
	toodledo *httptest.Server

	forecasts atomic.Int32
	lastZip   atomic.Value
	lastEmail atomic.Value
}

func newFakeSources(t *testing.T) *fakeSources {
	t.Helper()
	fs := &fakeSources{}
	fs.weather = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.forecasts.Add(1)
		parts := strings.Split(strings.TrimSuffix(r.URL.Path, ".json"), "/")
		fs.lastZip.Store(parts[len(parts)-1])
		w.Write([]byte(testForecast)) //nolint:errcheck
	}))
	fs.toodledo = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/account/lookup.php":
			fs.lastEmail.Store(r.URL.Query().Get("email"))
			w.Write([]byte(`{"userid":"u1"}`)) //nolint:errcheck
		case "/account/token.php":
			w.Write([]byte(`{"token":"t1"}`)) //nolint:errcheck
		default:
			w.Write([]byte(`[{"num":2,"total":2},{"id":"1","title":"Buy milk"},{"id":"2","title":"Call mom"}]`)) //nolint:errcheck
		}
	}))
	t.Cleanup(fs.weather.Close)
	t.Cleanup(fs.toodledo.Close)
	return fs
}

func testConfig(fs *fakeSources) *config.Config {
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Form.Type = "DailyForm"
	c.Form.FetchTimeoutSecs = 5
	c.Weather.Key = "test-key"
	c.Weather.BaseURL = fs.weather.URL
	c.Weather.RateLimit = 100
	c.Toodledo.BaseURL = fs.toodledo.URL
	c.Toodledo.RateLimit = 100
	c.Directory.Zip = "07307"
	c.Directory.User = "Andy"
	c.Resilience.MaxAttempts = 1
	c.Server.Port = 8080
	return c
}

func newTestEnv(t *testing.T) (*formEnv, *fakeSources) {
	t.Helper()
	fs := newFakeSources(t)
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))

	env := newEnv(testConfig(fs), st)
	t.Cleanup(env.Close)
	return env, fs
}

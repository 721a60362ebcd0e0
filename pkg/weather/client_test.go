package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastJSON = `{
  "response": {"version": "0.1"},
  "forecast": {
    "simpleforecast": {
      "forecastday": [
        {"date": {"day": 19, "month": 10, "year": 2026}, "high": {"fahrenheit": "61", "celsius": "16"}, "low": {"fahrenheit": "48", "celsius": "9"}, "conditions": "Partly Cloudy"},
        {"date": {"day": 20, "month": 10, "year": 2026}, "high": {"fahrenheit": 58, "celsius": 14}, "low": {"fahrenheit": 44, "celsius": 7}, "conditions": "Rain"}
      ]
    }
  }
}`

func TestForecast_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/test-key/geolookup/forecast10day/q/10001.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(forecastJSON)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	days, err := client.Forecast(context.Background(), "10001")

	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-10-19", days[0].Date.Key())
	assert.Equal(t, Degrees("48"), days[0].Low.Fahrenheit)
	assert.Equal(t, "Partly Cloudy", days[0].Conditions)
	// Numeric readings decode too.
	assert.Equal(t, Degrees("44"), days[1].Low.Fahrenheit)
	assert.Equal(t, Degrees("58"), days[1].High.Fahrenheit)
}

func TestForecast_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance")) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := client.Forecast(context.Background(), "10001")

	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode())
	assert.Contains(t, err.Error(), "maintenance")
}

func TestForecast_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"response": map[string]any{
				"error": map[string]string{"type": "keynotfound", "description": "this key does not exist"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := client.Forecast(context.Background(), "10001")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "keynotfound")
}

func TestForecast_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := client.Forecast(context.Background(), "10001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestForecast_EmptyZip(t *testing.T) {
	t.Parallel()

	client := NewClient("test-key")
	_, err := client.Forecast(context.Background(), "")
	require.Error(t, err)
}

func TestForecast_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(forecastJSON)) //nolint:errcheck
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := client.Forecast(ctx, "10001")
	require.Error(t, err)
}

func TestDegrees_Unmarshal(t *testing.T) {
	t.Parallel()

	var d Degrees
	require.NoError(t, json.Unmarshal([]byte(`"52"`), &d))
	assert.Equal(t, Degrees("52"), d)
	require.NoError(t, json.Unmarshal([]byte(`-3`), &d))
	assert.Equal(t, Degrees("-3"), d)
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Equal(t, Degrees(""), d)
	assert.Error(t, json.Unmarshal([]byte(`{}`), &d))
}

// Package weather provides a client for the 10-day forecast API keyed by
// postal code.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client fetches daily forecasts for a location code.
type Client interface {
	// Forecast returns the daily forecasts for a postal code.
	Forecast(ctx context.Context, zipCode string) ([]Day, error)
}

// Day is one daily forecast entry.
type Day struct {
	Date       Date        `json:"date"`
	High       Temperature `json:"high"`
	Low        Temperature `json:"low"`
	Conditions string      `json:"conditions"`
}

// Date is a calendar date as the API reports it.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Key formats the date as 2006-01-02.
func (d Date) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Temperature holds a reading in both scales.
type Temperature struct {
	Fahrenheit Degrees `json:"fahrenheit"`
	Celsius    Degrees `json:"celsius"`
}

// Degrees is a temperature reading. The API sends it as a string, sometimes
// as a bare number; both decode.
type Degrees string

// UnmarshalJSON accepts a JSON string or number.
func (d *Degrees) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*d = Degrees(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrapf(err, "weather: decode degrees %s", s)
	}
	*d = Degrees(n.String())
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather: unexpected status %d: %s", e.Code, e.Body)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *StatusError) StatusCode() int { return e.Code }

type forecastResponse struct {
	Response struct {
		Error *struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"response"`
	Forecast struct {
		SimpleForecast struct {
			ForecastDay []Day `json:"forecastday"`
		} `json:"simpleforecast"`
	} `json:"forecast"`
}

// Option configures the weather client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a forecast client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://api.wunderground.com",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Forecast(ctx context.Context, zipCode string) ([]Day, error) {
	if zipCode == "" {
		return nil, eris.New("weather: zip code is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "weather: rate limit wait")
	}

	reqURL := fmt.Sprintf("%s/api/%s/geolookup/forecast10day/q/%s.json",
		c.baseURL, url.PathEscape(c.apiKey), url.PathEscape(zipCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "weather: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "weather: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "weather: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var parsed forecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "weather: decode response")
	}
	if e := parsed.Response.Error; e != nil {
		return nil, eris.Errorf("weather: api error %s: %s", e.Type, e.Description)
	}
	return parsed.Forecast.SimpleForecast.ForecastDay, nil
}

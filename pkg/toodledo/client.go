// Package toodledo provides a client for the Toodledo v2 task API.
package toodledo

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client reads the task list of the configured account.
type Client interface {
	// Tasks returns the account's tasks.
	Tasks(ctx context.Context) ([]Task, error)
}

// Task is one task record. Records without a title are kept as-is; callers
// decide whether to skip them.
type Task struct {
	ID    string  `json:"id,omitempty"`
	Title *string `json:"title,omitempty"`
}

// HasTitle reports whether the record carries a non-empty title.
func (t Task) HasTitle() bool {
	return t.Title != nil && *t.Title != ""
}

// Credentials identify the application and the account.
type Credentials struct {
	AppID    string
	AppToken string
	Email    string
	Password string
}

// APIError is an error payload returned with a 200 status.
type APIError struct {
	Code int    `json:"errorCode"`
	Desc string `json:"errorDesc"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toodledo: api error %d: %s", e.Code, e.Desc)
}

// Key errors: the session key is missing or no longer accepted.
const (
	CodeNoKey      = 1
	CodeInvalidKey = 2
)

// IsKeyError reports whether the API rejected the session key.
func (e *APIError) IsKeyError() bool {
	return e.Code == CodeNoKey || e.Code == CodeInvalidKey
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("toodledo: unexpected status %d: %s", e.Code, e.Body)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *StatusError) StatusCode() int { return e.Code }

// Option configures the client.
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
	creds   Credentials
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu  sync.Mutex
	key string
}

// NewClient creates a Toodledo client. The session key is negotiated on the
// first call and reused until the API rejects it.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:   creds,
		baseURL: "http://api.toodledo.com/2",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign returns the request signature: md5(value + appToken).
func Sign(value, appToken string) string {
	return md5Hex(value + appToken)
}

// SessionKey derives the key used on authenticated calls:
// md5(md5(password) + appToken + sessionToken).
func SessionKey(password, appToken, sessionToken string) string {
	return md5Hex(md5Hex(password) + appToken + sessionToken)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *httpClient) Tasks(ctx context.Context) ([]Task, error) {
	key, err := c.sessionKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/tasks/get.php", url.Values{"key": {key}})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsKeyError() {
		// Expired token: renegotiate once.
		c.dropKey(key)
		if key, err = c.sessionKey(ctx); err != nil {
			return nil, err
		}
		body, err = c.get(ctx, "/tasks/get.php", url.Values{"key": {key}})
	}
	if err != nil {
		return nil, eris.Wrap(err, "toodledo: get tasks")
	}

	// The first element is a summary ({"num":..,"total":..}); tasks follow.
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "toodledo: decode tasks")
	}
	tasks := make([]Task, 0, len(raw))
	for i, r := range raw {
		if i == 0 && isSummary(r) {
			continue
		}
		var t Task
		if err := json.Unmarshal(r, &t); err != nil {
			return nil, eris.Wrapf(err, "toodledo: decode task %d", i)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func isSummary(r json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(r, &probe); err != nil {
		return false
	}
	_, hasNum := probe["num"]
	_, hasTotal := probe["total"]
	return hasNum || hasTotal
}

func (c *httpClient) sessionKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" {
		return c.key, nil
	}

	var lookup struct {
		UserID string `json:"userid"`
	}
	err := c.getJSON(ctx, "/account/lookup.php", url.Values{
		"appid": {c.creds.AppID},
		"email": {c.creds.Email},
		"pass":  {c.creds.Password},
		"sig":   {Sign(c.creds.Email, c.creds.AppToken)},
	}, &lookup)
	if err != nil {
		return "", eris.Wrap(err, "toodledo: account lookup")
	}
	if lookup.UserID == "" {
		return "", eris.New("toodledo: account lookup returned no userid")
	}

	var token struct {
		Token string `json:"token"`
	}
	err = c.getJSON(ctx, "/account/token.php", url.Values{
		"appid":  {c.creds.AppID},
		"userid": {lookup.UserID},
		"sig":    {Sign(lookup.UserID, c.creds.AppToken)},
	}, &token)
	if err != nil {
		return "", eris.Wrap(err, "toodledo: session token")
	}
	if token.Token == "" {
		return "", eris.New("toodledo: token endpoint returned no token")
	}

	c.key = SessionKey(c.creds.Password, c.creds.AppToken, token.Token)
	return c.key, nil
}

// dropKey forgets a rejected key unless another call already replaced it.
func (c *httpClient) dropKey(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == stale {
		c.key = ""
	}
}

func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	return eris.Wrapf(json.Unmarshal(body, out), "toodledo: decode %s", path)
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "toodledo: rate limit wait")
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "toodledo: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "toodledo: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "toodledo: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		return nil, &apiErr
	}
	return body, nil
}

// Package remote is the client for the task server.
//
// The server exposes plain JSON CRUD over /tasks. Credentials are bearer
// tokens supplied through an oauth2.TokenSource.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/prioritylab/prio/internal/types"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 10 * time.Second

// ErrRemoteNotFound is returned when the server answers 404.
var ErrRemoteNotFound = errors.New("task not found on server")

// ErrMalformedResponse is wrapped by a *TransportError when a 2xx answer
// does not hold the expected JSON.
var ErrMalformedResponse = errors.New("malformed response")

// ErrNotConfigured is returned by Open when no server URL is set.
var ErrNotConfigured = errors.New("remote.url is not configured")

// Service is the set of server calls the sync coordinator makes.
type Service interface {
	List(ctx context.Context) ([]*types.Task, error)
	Create(ctx context.Context, task *types.Task) (*types.Task, error)
	Update(ctx context.Context, id string, payload json.RawMessage) (*types.Task, error)
	Delete(ctx context.Context, id string) error
	// Probe succeeds when the server answers at all.
	Probe(ctx context.Context) error
}

// TransportError describes a failed server call. StatusCode is zero when no
// response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound reports whether the server said the task does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRemoteNotFound)
}

// Client talks to the task server over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for baseURL. A nil source sends no credentials.
func NewClient(ctx context.Context, baseURL string, source oauth2.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var hc *http.Client
	if source != nil {
		hc = oauth2.NewClient(ctx, source)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = timeout
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: hc,
	}
}

// Options is the remote section of the configuration.
type Options struct {
	URL       string
	Token     string
	TokenFile string
	Timeout   time.Duration
}

// Open builds a client from opts. The token file, when set, takes precedence
// over the literal token.
func Open(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid remote.url %q: %w", opts.URL, err)
	}
	source, err := TokenSource(opts.Token, opts.TokenFile)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, opts.URL, source, opts.Timeout), nil
}

// TokenSource returns the credentials to send, or nil when none are set.
// A token file holds either an oauth2.Token as JSON or a bare token.
func TokenSource(token, tokenFile string) (oauth2.TokenSource, error) {
	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var tok oauth2.Token
			if err := json.Unmarshal(trimmed, &tok); err != nil {
				return nil, fmt.Errorf("invalid token file: %w", err)
			}
			if tok.AccessToken == "" {
				return nil, fmt.Errorf("token file %s has no access_token", tokenFile)
			}
			return oauth2.StaticTokenSource(&tok), nil
		}
		token = string(trimmed)
	}
	if token == "" {
		return nil, nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
}

// response is a 2xx answer kept with the call it belongs to, so a body that
// fails to decode is reported against that call.
type response struct {
	method string
	path   string
	status int
	body   []byte
}

// decode parses the body into v. A body that is not the JSON we asked for
// (a captive portal page, a truncated reply) is a server failure, not a
// local one.
func (r *response) decode(v interface{}) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &TransportError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: r.status,
			Err:        fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	return nil
}

func (r *response) empty() bool {
	return len(bytes.TrimSpace(r.body)) == 0
}

// request sends one call. There is no retry here: failed calls go back to
// the outbox, whose schedule spaces out the next attempt. Non-2xx answers
// become a *TransportError; 404 wraps ErrRemoteNotFound.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*response, error) {
	var reader io.Reader
	if body != nil {
		payload, ok := body.(json.RawMessage)
		if !ok {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			payload = b
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: ErrRemoteNotFound}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: errors.New("rate limited")}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("API error: %s", strings.TrimSpace(string(respBody)))}
	}
	return &response{method: method, path: path, status: resp.StatusCode, body: respBody}, nil
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

// List fetches every task of the authenticated user.
func (c *Client) List(ctx context.Context) ([]*types.Task, error) {
	resp, err := c.request(ctx, http.MethodGet, "/tasks", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	var tasks []*types.Task
	if err := resp.decode(&tasks); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	for _, t := range tasks {
		t.SyncStatus = ""
		t.LastSyncedAt = nil
		t.ServerUpdatedAt = nil
	}
	return tasks, nil
}

// Create uploads a new task.
func (c *Client) Create(ctx context.Context, task *types.Task) (*types.Task, error) {
	resp, err := c.request(ctx, http.MethodPost, "/tasks", task.Wire())
	if err != nil {
		return nil, fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	created, err := decodeTask(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	return created, nil
}

// Update sends a partial update.
func (c *Client) Update(ctx context.Context, id string, payload json.RawMessage) (*types.Task, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	resp, err := c.request(ctx, http.MethodPut, taskPath(id), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	updated, err := decodeTask(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return updated, nil
}

// Delete removes a task.
func (c *Client) Delete(ctx context.Context, id string) error {
	if _, err := c.request(ctx, http.MethodDelete, taskPath(id), nil); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// Probe issues a HEAD request against /tasks. Any HTTP answer, even an
// error status, means the server is reachable.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL+"/tasks", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Method: http.MethodHead, Path: "/tasks", Err: err}
	}
	_ = resp.Body.Close()
	return nil
}

// decodeTask parses a task response. An empty body yields nil.
func decodeTask(resp *response) (*types.Task, error) {
	if resp.empty() {
		return nil, nil
	}
	var t types.Task
	if err := resp.decode(&t); err != nil {
		return nil, err
	}
	t.SyncStatus = ""
	return &t, nil
}

var _ Service = (*Client)(nil)

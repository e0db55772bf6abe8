// Package api is a thin client for the to-do backend.
//
// Bearer-authenticated calls read the access token from a TokenSource at
// call time. Nothing is refreshed proactively and a 401 is never retried;
// callers handle it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Makepad-fr/tada/internal/model"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000/api/"

	opObtainToken  = "obtain token"
	opRefreshToken = "refresh token"
	opRegister     = "register"
	opListTodos    = "list todos"
	opCreateTodo   = "create todo"
	opUpdateTodo   = "update todo"
	opDeleteTodo   = "delete todo"
)

// TokenSource yields the current access token, or "" when logged out.
type TokenSource interface {
	AccessToken() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

func (f TokenSourceFunc) AccessToken() string { return f() }

// Client talks JSON to the backend rooted at a base URL.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	log    *logrus.Entry
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.tokens = ts } }

func WithLogger(l *logrus.Entry) Option { return func(c *Client) { c.log = l } }

// New returns a client for baseURL, DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logrus.WithField("component", "api"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SetTokenSource replaces the token source; the session registers itself here.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// ---------------------------------------------------
// Auth endpoints
// ---------------------------------------------------

// ObtainToken exchanges credentials for a token pair (POST /token/).
func (c *Client) ObtainToken(ctx context.Context, creds model.Credentials) (model.TokenPair, error) {
	var pair model.TokenPair
	err := c.do(ctx, request{
		op: opObtainToken, method: http.MethodPost, path: "token/",
		body: creds, expect: http.StatusOK, out: &pair,
	})
	if err != nil {
		return model.TokenPair{}, err
	}
	if pair.Access == "" {
		return model.TokenPair{}, fmt.Errorf("%s: response has no access token", opObtainToken)
	}
	return pair, nil
}

// RefreshToken mints a new pair from a refresh token (POST /token/refresh/).
// When the backend does not rotate refresh tokens the response has no
// refresh field; the returned pair then carries the one that was sent.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (model.TokenPair, error) {
	var pair model.TokenPair
	err := c.do(ctx, request{
		op: opRefreshToken, method: http.MethodPost, path: "token/refresh/",
		body: map[string]string{"refresh": refresh}, expect: http.StatusOK, out: &pair,
	})
	if err != nil {
		return model.TokenPair{}, err
	}
	if pair.Access == "" {
		return model.TokenPair{}, fmt.Errorf("%s: response has no access token", opRefreshToken)
	}
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}
	return pair, nil
}

// Register creates an account (POST /register/, expects 201).
func (c *Client) Register(ctx context.Context, creds model.Credentials) error {
	return c.do(ctx, request{
		op: opRegister, method: http.MethodPost, path: "register/",
		body: creds, expect: http.StatusCreated,
	})
}

// ---------------------------------------------------
// Todo endpoints (bearer-authenticated)
// ---------------------------------------------------

func (c *Client) ListTodos(ctx context.Context) ([]model.Todo, error) {
	var todos []model.Todo
	err := c.do(ctx, request{
		op: opListTodos, method: http.MethodGet, path: "todos/",
		auth: true, expect: http.StatusOK, out: &todos,
	})
	if err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []model.Todo{}
	}
	return todos, nil
}

func (c *Client) CreateTodo(ctx context.Context, title string) (model.Todo, error) {
	var t model.Todo
	err := c.do(ctx, request{
		op: opCreateTodo, method: http.MethodPost, path: "todos/",
		body: model.Todo{Title: title, Completed: false},
		auth: true, expect: http.StatusCreated, out: &t,
	})
	return t, err
}

// UpdateTodo sets the completed flag (PATCH /todos/{id}/).
func (c *Client) UpdateTodo(ctx context.Context, id int64, completed bool) (model.Todo, error) {
	t := model.Todo{ID: id, Completed: completed}
	err := c.do(ctx, request{
		op: opUpdateTodo, method: http.MethodPatch, path: fmt.Sprintf("todos/%d/", id),
		body: map[string]bool{"completed": completed},
		auth: true, expect: http.StatusOK, out: &t,
	})
	return t, err
}

func (c *Client) DeleteTodo(ctx context.Context, id int64) error {
	return c.do(ctx, request{
		op: opDeleteTodo, method: http.MethodDelete, path: fmt.Sprintf("todos/%d/", id),
		auth: true, expect: http.StatusNoContent,
	})
}

// ---------------------------------------------------
// transport
// ---------------------------------------------------

type request struct {
	op     string
	method string
	path   string
	body   any
	auth   bool
	expect int
	out    any
}

func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	target := c.base.ResolveReference(&url.URL{Path: r.path})
	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth && c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log := c.log.WithFields(logrus.Fields{
		"op":         r.op,
		"method":     r.method,
		"path":       target.Path,
		"request_id": reqID,
	})
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", r.op, ctxErr)
		}
		return fmt.Errorf("%s: %w: %w", r.op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w: %w", r.op, ErrNetwork, err)
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "duration": time.Since(start)})

	if resp.StatusCode != r.expect {
		log.Warn("unexpected status")
		return &StatusError{Op: r.op, Code: resp.StatusCode, Body: string(raw), kind: classify(r.op, resp.StatusCode)}
	}
	log.Debug("request done")

	if r.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, r.out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.op, err)
	}
	return nil
}

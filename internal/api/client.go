package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// APIPrefix is the path every backend endpoint lives under.
const APIPrefix = "/api/v1"

// Client is the single point of HTTP configuration for the backend: base
// URL, bearer token and error decoding. The typed modules hang off it.
type Client struct {
	base    *url.URL
	http    *http.Client
	log     *zap.Logger
	metrics *metrics

	mu    sync.RWMutex
	token string

	Auth     *AuthAPI
	Accounts *AccountsAPI
	Emails   *EmailsAPI
	Agent    *AgentAPI
	Rules    *RulesAPI
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is
// wrapped so the bearer header is still attached.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRegisterer registers the request metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.metrics = newMetrics(reg) }
}

// New builds a client for the backend at baseURL (scheme and host, e.g.
// http://localhost:8000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	u.Path += APIPrefix
	u.RawPath = ""

	c := &Client{
		base: u,
		http: &http.Client{Timeout: 60 * time.Second},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newMetrics(prometheus.NewRegistry())
	}

	// Copy so a caller-supplied client is not mutated.
	hc := *c.http
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &bearerTransport{base: base, client: c}
	c.http = &hc

	c.Auth = &AuthAPI{c: c}
	c.Accounts = &AccountsAPI{c: c}
	c.Emails = &EmailsAPI{c: c}
	c.Agent = &AgentAPI{c: c}
	c.Rules = &RulesAPI{c: c}
	return c, nil
}

// SetToken attaches token as the bearer credential of every later request.
// An empty token removes the header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL is the API root including the /api/v1 prefix.
func (c *Client) BaseURL() string { return c.base.String() }

type bearerTransport struct {
	base   http.RoundTripper
	client *Client
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := t.client.currentToken()
	if tok == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}).SetAuthHeader(r)
	return t.base.RoundTrip(r)
}

// call describes one backend request.
type call struct {
	method string
	route  string // path template, e.g. /email/{id}; used for metrics and logs
	path   string // escaped path below the API prefix
	query  url.Values
	body   any
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", cl.method, cl.route, err)
	}
	return nil
}

// send performs the request and converts non-2xx responses to *APIError.
// The caller owns the body of a successful response.
func (c *Client) send(ctx context.Context, cl call) (*http.Response, error) {
	u := c.base.JoinPath(strings.Split(strings.TrimPrefix(cl.path, "/"), "/")...)
	if len(cl.query) > 0 {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", cl.method, cl.route, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.route, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(cl.method, cl.route, "error", elapsed)
		c.log.Warn("request failed",
			zap.String("request_id", reqID),
			zap.String("method", cl.method),
			zap.String("route", cl.route),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.route, err)
	}
	c.metrics.observe(cl.method, cl.route, strconv.Itoa(resp.StatusCode), elapsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := newAPIError(cl.method, cl.route, resp)
		c.log.Info("backend error",
			zap.String("request_id", reqID),
			zap.String("method", cl.method),
			zap.String("route", cl.route),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", apiErr.Detail))
		return nil, apiErr
	}

	c.log.Debug("request",
		zap.String("request_id", reqID),
		zap.String("method", cl.method),
		zap.String("route", cl.route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

// setBool adds key=true|false when v is set.
func setBool(q url.Values, key string, v *bool) {
	if v != nil {
		q.Set(key, strconv.FormatBool(*v))
	}
}

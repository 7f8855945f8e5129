package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/ixe-agent/articleapi/common"
	"github.com/ixe-agent/articleapi/common/model"
)

// Client performs authenticated calls against the platform API. Feature
// modules go through it and never set Authorization themselves.
type Client interface {
	NewRequest(method, endpoint string, params url.Values, body []byte) (*Request, error)
	Do(ctx context.Context, req *Request) (*Response, error)
	GetBytes(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
	GetJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error
	PostJSON(ctx context.Context, endpoint string, in, out interface{}) error
	PutJSON(ctx context.Context, endpoint string, in, out interface{}) error
	DeleteJSON(ctx context.Context, endpoint string, out interface{}) error
	Send(ctx context.Context, method, endpoint, contentType string, body []byte, out interface{}) error
}

// Credentials is the process-wide credential owner the client reads from
// and writes refreshed tokens to.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	Update(ctx context.Context, tok *oauth2.Token) error
}

type client struct {
	baseURL    *url.URL
	httpClient common.HttpClient
	creds      Credentials
	authClient common.AuthClient

	defaultHeader http.Header

	refreshGroup   singleflight.Group
	refreshTimeout time.Duration
	onExpired      func(ctx context.Context, err error)

	metrics *common.Metrics
	log     *slog.Logger

	requestStages  []RequestStage
	responseStages []ResponseStage
}

// Option customizes the client.
type Option func(*client)

func WithLogger(l *slog.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *common.Metrics) Option {
	return func(c *client) { c.metrics = m }
}

// WithSessionExpiredHandler registers fn to run once per failed refresh,
// before the SessionExpiredError reaches the caller.
func WithSessionExpiredHandler(fn func(ctx context.Context, err error)) Option {
	return func(c *client) { c.onExpired = fn }
}

// WithDefaultHeader adds a header sent with every request unless the
// request already carries it.
func WithDefaultHeader(key, value string) Option {
	return func(c *client) { c.defaultHeader.Set(key, value) }
}

// WithRefreshTimeout bounds the shared refresh call. The refresh ignores
// the caller's cancellation; a cancelled caller only stops waiting for it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *client) { c.refreshTimeout = d }
}

const defaultRefreshTimeout = 15 * time.Second

// NewClient creates a Client rooted at baseURL. authClient may be nil, in
// which case 401 responses are returned as-is.
func NewClient(baseURL string, httpClient common.HttpClient, creds Credentials, authClient common.AuthClient, opts ...Option) (Client, error) {
	const op = "api.NewClient"

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base URL: %w", op, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: base URL %q must be absolute", op, baseURL)
	}
	if httpClient == nil || creds == nil {
		return nil, fmt.Errorf("%s: http client and credentials are required", op)
	}

	c := &client{
		baseURL:    base,
		httpClient: httpClient,
		creds:      creds,
		authClient: authClient,
		defaultHeader: http.Header{
			"Accept":       []string{"application/json"},
			"Content-Type": []string{"application/json"},
		},
		refreshTimeout: defaultRefreshTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.requestStages = []RequestStage{c.attachDefaults, c.attachRequestID, c.attachAuth}
	c.responseStages = []ResponseStage{c.handleUnauthorized}
	return c, nil
}

// NewRequest resolves endpoint against the base URL.
func (c *client) NewRequest(method, endpoint string, params url.Values, body []byte) (*Request, error) {
	urlStr, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: method,
		URL:    urlStr,
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// Do runs req through the request stages, sends it, then runs the
// response stages over the outcome.
func (c *client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for _, stage := range c.requestStages {
		if err := stage(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.execute(ctx, req)
	for _, stage := range c.responseStages {
		resp, err = stage(ctx, req, resp, err)
	}
	return resp, err
}

func (c *client) GetBytes(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := c.NewRequest(http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *client) GetJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	data, err := c.GetBytes(ctx, endpoint, params)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

func (c *client) PostJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, in, out)
}

func (c *client) PutJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPut, endpoint, in, out)
}

func (c *client) DeleteJSON(ctx context.Context, endpoint string, out interface{}) error {
	return c.Send(ctx, http.MethodDelete, endpoint, "", nil, out)
}

func (c *client) sendJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = b
	}
	return c.Send(ctx, method, endpoint, "application/json", body, out)
}

// Send issues a request with an explicit content type. out may be nil.
func (c *client) Send(ctx context.Context, method, endpoint, contentType string, body []byte, out interface{}) error {
	req, err := c.NewRequest(method, endpoint, nil, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeInto(resp.Body, out)
}

// execute performs one HTTP round trip. Failures come back as
// *RequestError; non-2xx statuses wrap a *common.HTTPError.
func (c *client) execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	l := common.LoggerFromOr(ctx, c.log).With(
		slog.String("request_id", req.Header.Get(requestIDHeader)),
		slog.String("method", req.Method),
		slog.String("url", redactURL(req.URL)),
		slog.Bool("retried", req.retried),
	)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = req.Header.Clone()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0)
		l.Warn("http", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
		return nil, &RequestError{Request: req, Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0)
		return nil, &RequestError{Request: req, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.metrics.ObserveRequest(req.Method, httpResp.StatusCode)
	l.Info("http", slog.Int("status", httpResp.StatusCode), slog.Duration("dur", time.Since(start)))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &RequestError{Request: req, Err: &common.HTTPError{
			StatusCode: httpResp.StatusCode,
			Method:     req.Method,
			URL:        req.URL,
			Body:       data,
		}}
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// buildURL merges baseURL + endpoint + params
func (c *client) buildURL(endpoint string, params url.Values) (string, error) {
	path, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	fullURL := c.baseURL.ResolveReference(path)
	if len(params) > 0 {
		q := fullURL.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		fullURL.RawQuery = q.Encode()
	}
	return fullURL.String(), nil
}

func decodeInto(data []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := model.JSONUnmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// redactURL drops the query string, which may carry search terms.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Package backend is the portal's only way to reach the clinic REST API.
// Every call goes through Client.do, which owns cookie credentials and the
// anti-forgery header.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	AccessCookie    = "access_token_cookie"
	CSRFCookie      = "csrf_access_token"
	CSRFHeader      = "X-CSRF-TOKEN"
	RequestIDHeader = "X-Request-ID"
)

var (
	ErrMissingCSRF = errors.New("CSRF token is missing. Please log in again.")
	ErrMalformed   = errors.New("malformed backend response")
)

// APIError is a non-success HTTP status with the server's own message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// TransportError means no usable response came back.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Credentials are the backend cookies the browser holds for the portal.
type Credentials struct {
	Access string
	CSRF   string
}

func CredentialsFromRequest(r *http.Request) Credentials {
	var c Credentials
	if ck, err := r.Cookie(AccessCookie); err == nil {
		c.Access = ck.Value
	}
	if ck, err := r.Cookie(CSRFCookie); err == nil {
		c.CSRF = ck.Value
	}
	return c
}

type Observer interface {
	ObserveBackend(method, route string, code int, d time.Duration)
}

type Client struct {
	base string
	http *http.Client
	obs  Observer
	now  func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithObserver(o Observer) Option        { return func(c *Client) { c.obs = o } }

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type ctxKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// envelope holds the fields any endpoint may use to talk back.
type envelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Msg     string `json:"msg"`
	Status  string `json:"status"`
}

func (e envelope) errorText(fallback string) string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	case e.Msg != "":
		return e.Msg
	}
	return fallback
}

type call struct {
	method string
	route  string // path template, used as a metrics label
	path   string
	query  url.Values
	body   any
	creds  Credentials
}

type response struct {
	status  int
	cookies []*http.Cookie
	body    []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

func (r *response) decode(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (r *response) envelope() envelope {
	var e envelope
	_ = json.Unmarshal(r.body, &e)
	return e
}

// fail turns a non-success response into an *APIError.
func (r *response) fail(fallback string) error {
	return &APIError{StatusCode: r.status, Message: r.envelope().errorText(fallback)}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

func (c *Client) do(ctx context.Context, cl call) (*response, error) {
	// cookie sessions must echo the anti-forgery token on writes
	if mutating(cl.method) && cl.creds.Access != "" && cl.creds.CSRF == "" {
		return nil, ErrMissingCSRF
	}

	u := c.base + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil || mutating(cl.method) {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.creds.Access != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: cl.creds.Access})
	}
	if cl.creds.CSRF != "" {
		req.AddCookie(&http.Cookie{Name: CSRFCookie, Value: cl.creds.CSRF})
		if mutating(cl.method) {
			req.Header.Set(CSRFHeader, cl.creds.CSRF)
		}
	}
	if id := RequestID(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(cl, 0, start)
		return nil, &TransportError{Op: cl.method + " " + cl.route, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	c.observe(cl, resp.StatusCode, start)
	if err != nil {
		return nil, &TransportError{Op: cl.method + " " + cl.route, Err: err}
	}
	return &response{status: resp.StatusCode, cookies: resp.Cookies(), body: b}, nil
}

func (c *Client) observe(cl call, code int, start time.Time) {
	if c.obs != nil {
		c.obs.ObserveBackend(cl.method, cl.route, code, c.now().Sub(start))
	}
}

// list extracts the array nested under key from a collection response.
func list[T any](r *response, key string) ([]T, error) {
	var raw map[string]json.RawMessage
	if err := r.decode(&raw); err != nil {
		return nil, err
	}
	v, ok := raw[key]
	if !ok {
		return nil, fmt.Errorf("%w: no %q key", ErrMalformed, key)
	}
	var out []T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

// Ping reports whether the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, call{method: http.MethodGet, route: "/dashboard", path: "/dashboard"})
	return err
}

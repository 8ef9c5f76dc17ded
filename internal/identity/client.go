// Package identity is an HTTP client for a SuperTokens-compatible core.
// It covers the email/password recipe and session verification the backend needs.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"

	shelf "github.com/otakushelf/otakushelf/internal"
	"github.com/otakushelf/otakushelf/internal/circuitbreaker"
)

const (
	defaultBaseURL = "http://localhost:3567"
	defaultTimeout = 5 * time.Second
	cdiVersion     = "4.0"
)

// ErrEmailExists is returned by SignUp when the core already knows the email.
var ErrEmailExists = errors.New("identity: email already exists")

// ErrSessionInvalid is returned by VerifySession for unknown, expired or
// revoked access tokens.
var ErrSessionInvalid = errors.New("identity: session invalid")

// APIError is an unexpected response from the identity core.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatus reports the core's status code for breaker classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Unwrap lets callers match provider failures with errors.Is(err, shelf.ErrIdentityProvider).
func (e *APIError) Unwrap() error { return shelf.ErrIdentityProvider }

// Session is a freshly created session.
type Session struct {
	Handle        string
	UserID        string
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// VerifiedSession is the result of a successful access token check.
type VerifiedSession struct {
	Handle string
	UserID string
}

// Observer records identity call latency. Used for metrics.
type Observer interface {
	IdentityCall(op string, d time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Resolver *dnscache.Resolver      // nil disables DNS caching
	Breaker  *circuitbreaker.Breaker // nil disables the breaker
	Observer Observer
}

// Client talks to the identity core over HTTP.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	obs     Observer
}

// New creates a Client with a tuned http.Client.
// If resolver is non-nil, it wraps the transport's DialContext with cached DNS lookups.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Transport: NewTransport(opts.Resolver), Timeout: timeout},
		breaker: opts.Breaker,
		obs:     opts.Observer,
	}
}

// NewTransport returns a pooled *http.Transport with optional DNS caching.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// SignUp registers an email/password user and returns the core's user id.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	body, err := c.post(ctx, "signup", "/recipe/signup", map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	switch status := gjson.GetBytes(body, "status").String(); status {
	case "OK":
		return gjson.GetBytes(body, "user.id").String(), nil
	case "EMAIL_ALREADY_EXISTS_ERROR":
		return "", ErrEmailExists
	default:
		return "", unexpectedStatus("signup", status)
	}
}

// SignIn checks email/password credentials and returns the core's user id.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	body, err := c.post(ctx, "signin", "/recipe/signin", map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	switch status := gjson.GetBytes(body, "status").String(); status {
	case "OK":
		return gjson.GetBytes(body, "user.id").String(), nil
	case "WRONG_CREDENTIALS_ERROR":
		return "", shelf.ErrInvalidCredentials
	default:
		return "", unexpectedStatus("signin", status)
	}
}

// CreateSession starts a session for a core user id.
func (c *Client) CreateSession(ctx context.Context, userID string) (*Session, error) {
	body, err := c.post(ctx, "create_session", "/recipe/session", map[string]any{
		"userId":             userID,
		"enableAntiCsrf":     false,
		"userDataInJWT":      map[string]any{},
		"userDataInDatabase": map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if status := res.Get("status").String(); status != "OK" {
		return nil, unexpectedStatus("create_session", status)
	}
	return &Session{
		Handle:        res.Get("session.handle").String(),
		UserID:        res.Get("session.userId").String(),
		AccessToken:   res.Get("accessToken.token").String(),
		AccessExpiry:  time.UnixMilli(res.Get("accessToken.expiry").Int()),
		RefreshToken:  res.Get("refreshToken.token").String(),
		RefreshExpiry: time.UnixMilli(res.Get("refreshToken.expiry").Int()),
	}, nil
}

// VerifySession validates an access token.
func (c *Client) VerifySession(ctx context.Context, accessToken string) (*VerifiedSession, error) {
	body, err := c.post(ctx, "verify_session", "/recipe/session/verify", map[string]any{
		"accessToken":     accessToken,
		"enableAntiCsrf":  false,
		"doAntiCsrfCheck": false,
	})
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	switch status := res.Get("status").String(); status {
	case "OK":
		return &VerifiedSession{
			Handle: res.Get("session.handle").String(),
			UserID: res.Get("session.userId").String(),
		}, nil
	case "UNAUTHORISED", "TRY_REFRESH_TOKEN":
		return nil, ErrSessionInvalid
	default:
		return nil, unexpectedStatus("verify_session", status)
	}
}

// Ping checks that the core answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/hello", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return parseAPIError("ping", resp)
	}
	return nil
}

// post sends a JSON request and returns the validated response body.
// Transport and HTTP failures count against the breaker; recipe-level
// statuses such as WRONG_CREDENTIALS_ERROR do not.
func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	start := time.Now()
	if c.obs != nil {
		defer func() { c.obs.IdentityCall(op, time.Since(start)) }()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("identity %s: marshal request: %w", op, err)
	}
	if c.breaker == nil {
		return c.exchange(ctx, op, path, data)
	}

	var body []byte
	err = c.breaker.Do(func() error {
		var err error
		body, err = c.exchange(ctx, op, path, data)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("identity %s: %w: %w", op, shelf.ErrIdentityProvider, err)
	}
	return body, err
}

func (c *Client) exchange(ctx context.Context, op, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("identity %s: create request: %w", op, err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w: %w", op, shelf.ErrIdentityProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(op, resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("identity %s: read response: %w: %w", op, shelf.ErrIdentityProvider, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: "invalid JSON"}
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("cdi-version", cdiVersion)
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

// parseAPIError reads up to 4KB from the response body and returns an APIError.
func parseAPIError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

func unexpectedStatus(op, status string) error {
	return fmt.Errorf("identity %s: unexpected status %q: %w", op, status, shelf.ErrIdentityProvider)
}

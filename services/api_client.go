package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/portal-client/v2/internal/config"
)

// ErrUnauthorized is matched by errors from 401 responses.
var ErrUnauthorized = errors.New("services: unauthorized")

const maxBodyBytes = 1 << 20

// TokenProvider supplies the bearer token attached to requests that do not
// carry one explicitly. An empty token means no Authorization header.
type TokenProvider interface {
	AccessToken() string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("services: backend error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("services: backend error (%d): %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Option configures an ApiClient.
type Option func(*ApiClient)

func WithTokenProvider(p TokenProvider) Option {
	return func(c *ApiClient) { c.tokens = p }
}

// WithHTTPClient replaces the default client. The address probe relies on
// the client's cookie jar, so callers passing their own client should give
// it one.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ApiClient) { c.client = client }
}

func WithTimeout(d time.Duration) Option {
	return func(c *ApiClient) { c.timeout = d }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *ApiClient) {
		if log != nil {
			c.log = log
		}
	}
}

// WithEndpoints overrides backend paths; empty fields keep their default.
func WithEndpoints(e config.Endpoints) Option {
	return func(c *ApiClient) {
		if e.Login != "" {
			c.endpoints.Login = e.Login
		}
		if e.CurrentUser != "" {
			c.endpoints.CurrentUser = e.CurrentUser
		}
		if e.AddressCheck != "" {
			c.endpoints.AddressCheck = e.AddressCheck
		}
		if e.Messages != "" {
			c.endpoints.Messages = e.Messages
		}
	}
}

// DefaultEndpoints are the backend paths used unless overridden.
var DefaultEndpoints = config.Endpoints{
	Login:        "/api/auth/login/",
	CurrentUser:  "/api/me/",
	AddressCheck: "/api/addresses/check/",
	Messages:     "/api/messages/",
}

// ApiClient builds and sends requests to the backend. The bearer header is
// resolved per request from the token provider, never stored on the client.
type ApiClient struct {
	base      *url.URL
	client    *http.Client
	timeout   time.Duration
	tokens    TokenProvider
	log       logrus.FieldLogger
	endpoints config.Endpoints
}

func NewApiClient(baseURL string, opts ...Option) (*ApiClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("services: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("services: parse base URL: %w", err)
	}
	c := &ApiClient{
		base:      parsed,
		timeout:   config.DefaultRequestTimeout,
		log:       logrus.StandardLogger(),
		endpoints: DefaultEndpoints,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("services: create cookie jar: %w", err)
		}
		c.client = &http.Client{Jar: jar, Timeout: c.timeout}
	}
	return c, nil
}

// Endpoints returns the effective backend paths.
func (c *ApiClient) Endpoints() config.Endpoints {
	return c.endpoints
}

func (c *ApiClient) defaultToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

// CallAPI sends payload as JSON with the default bearer token and decodes a
// 2xx JSON response into out. A nil out discards the body.
func (c *ApiClient) CallAPI(ctx context.Context, method, endpoint string, payload, out any) error {
	return c.callAPI(ctx, method, endpoint, payload, out, c.defaultToken())
}

func (c *ApiClient) callAPI(ctx context.Context, method, endpoint string, payload, out any, bearer string) error {
	req, err := c.newRequest(ctx, method, endpoint, payload, bearer)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("services: decode %s: %w", endpoint, err)
	}
	return nil
}

// newRequest prepares a JSON request. bearer is the token to present; an
// empty bearer sends no Authorization header, which is how the login call
// and the cookie-authenticated calls are made.
func (c *ApiClient) newRequest(ctx context.Context, method, endpoint string, payload any, bearer string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(payload); err != nil {
			return nil, fmt.Errorf("services: failed to marshal request data: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("services: failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *ApiClient) do(req *http.Request) (*http.Response, error) {
	entry := c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"request_id": req.Header.Get("X-Request-ID"),
	})
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return nil, fmt.Errorf("services: %s %s: %w", req.Method, req.URL.Path, err)
	}
	entry.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("request completed")
	return resp, nil
}

func (c *ApiClient) resolve(endpoint string) string {
	if endpoint == "" {
		return c.base.String()
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return c.base.String() + strings.TrimPrefix(endpoint, "/")
	}
	return c.base.ResolveReference(ref).String()
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		statusErr.Code = strings.TrimSpace(payload.Code)
		statusErr.Message = payload.Message
		if statusErr.Message == "" {
			statusErr.Message = payload.Detail
		}
	}
	return statusErr
}

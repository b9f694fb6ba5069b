// Package backend is the REST client for the cardiac-monitoring backend.
// Every call takes the caller's Credentials explicitly; nothing is read from
// ambient state.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is wrapped by StatusError when the backend answers 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoToken is returned when a call that needs a bearer token gets none.
	ErrNoToken = errors.New("missing bearer token")
)

// Credentials carries the bearer token attached to every request.
type Credentials struct {
	Token string
}

// StatusError is returned for any non-success HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to the backend REST API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, logger: logger}
}

// request describes one backend call.
type request struct {
	method     string
	path       string
	pathParams map[string]string
	body       any
	auth       bool
}

// do executes req and, on success, decodes the JSON body into out (if non-nil).
// The raw body is returned for callers that parse it themselves.
func (c *Client) do(ctx context.Context, creds Credentials, req request, out any) ([]byte, error) {
	r := c.http.R().SetContext(ctx)
	if req.auth {
		if creds.Token == "" {
			return nil, ErrNoToken
		}
		r.SetAuthToken(creds.Token)
	}
	if req.pathParams != nil {
		r.SetPathParams(req.pathParams)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		c.logger.Error("Backend call failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}

	if resp.IsError() {
		se := &StatusError{
			Method: req.method,
			Path:   resp.Request.URL,
			Code:   resp.StatusCode(),
			Body:   strings.TrimSpace(resp.String()),
		}
		c.logger.Warn("Backend returned error",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status_code", se.Code),
		)
		return nil, se
	}

	body := resp.Body()
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decoding %s %s response: %w", req.method, req.path, err)
		}
	}
	return body, nil
}

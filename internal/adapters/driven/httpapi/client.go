// Package httpapi is the JSON-over-HTTP plumbing shared by the embedding and
// vector store adapters.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// OperationError reports a failed provider call.
type OperationError struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string

	// Err is the domain classification or the transport error.
	Err error
}

func (e *OperationError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: status %d: %s", e.Provider, e.Op, e.StatusCode, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the call may succeed.
func (e *OperationError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.StatusCode == http.StatusNotFound
}

// classify maps a status code onto the domain errors the pipeline understands.
func classify(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrMissingCredentials
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return domain.ErrInvalidInput
	default:
		return nil
	}
}

// Config configures a Client.
type Config struct {
	// Provider names the service in errors.
	Provider string

	// BaseURL is prefixed to every request path.
	BaseURL string

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls. Zero disables throttling.
	RequestsPerSecond float64

	// Header is sent with every request.
	Header http.Header
}

// Client sends JSON requests to one provider.
type Client struct {
	http     *http.Client
	provider string
	baseURL  string
	header   http.Header
	limiter  *rate.Limiter
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		provider: cfg.Provider,
		baseURL:  cfg.BaseURL,
		header:   cfg.Header.Clone(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends in as JSON (nil sends no body) and decodes the response into out
// (nil discards it). Non-2xx responses become an *OperationError.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %s: marshal request: %w", c.provider, op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %s: create request: %w", c.provider, op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(ctx, op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %s: decode response: %w", c.provider, op, err)
	}
	return nil
}

// Page is a raw response body fetched with Get.
type Page struct {
	// URL is the final URL after redirects.
	URL string

	// ContentType is the media type without parameters.
	ContentType string

	// LastModified is zero when the server sent no Last-Modified header.
	LastModified time.Time

	Body []byte
}

// Get fetches target without JSON handling. target is used as is when it is
// an absolute URL and is appended to the base URL otherwise. Bodies larger
// than maxBody are rejected with domain.ErrInvalidInput.
func (c *Client) Get(ctx context.Context, op, target string, maxBody int64) (*Page, error) {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: create request: %w", c.provider, op, err)
	}

	resp, err := c.send(ctx, op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, &OperationError{Provider: c.provider, Op: op, Err: err}
	}
	if int64(len(body)) > maxBody {
		return nil, fmt.Errorf("%w: %s: %s: body exceeds %d bytes", domain.ErrInvalidInput, c.provider, op, maxBody)
	}

	page := &Page{URL: resp.Request.URL.String(), Body: body}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		page.ContentType = mediaType
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		page.LastModified = lm
	}
	return page, nil
}

// send throttles, applies the shared headers and turns non-2xx responses
// into an *OperationError. The caller closes the body of a returned response.
func (c *Client) send(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &OperationError{Provider: c.provider, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &OperationError{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(msg)),
			Err:        classify(resp.StatusCode),
		}
	}
	return resp, nil
}

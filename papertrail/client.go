package papertrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"papertrail-manager/internal/constants"
)

// Config holds the Papertrail client configuration
type Config struct {
	// APIToken is the account "API Token" found under Settings / Profile
	APIToken string

	// BaseURL defaults to https://papertrailapp.com/api/v1/
	BaseURL string

	// Timeout per HTTP attempt, defaults to 30 seconds
	Timeout time.Duration

	// Retry settings, default to 3 retries waiting between 1 and 30 seconds
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RequestsPerMinute throttles outgoing requests. 0 or negative disables throttling.
	RequestsPerMinute float64

	// HTTPClient replaces the pooled default client. Its transport is wrapped
	// with the token transport.
	HTTPClient *http.Client
}

// Client performs authenticated requests against the Papertrail API.
type Client struct {
	baseURL    *url.URL
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter

	limitsMu  sync.RWMutex
	limits    RateLimits
	hasLimits bool
}

// NewClient creates a new Papertrail API client
func NewClient(config Config) (*Client, error) {
	token := strings.TrimSpace(config.APIToken)
	if token == "" {
		return nil, ErrMissingAPIToken
	}

	rawBase := config.BaseURL
	if rawBase == "" {
		rawBase = constants.DefaultBaseURL
	}
	if !strings.HasSuffix(rawBase, "/") {
		rawBase += "/"
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidParameter, rawBase)
	}

	logger := log.WithFields(logrus.Fields{
		"base_url": baseURL.String(),
	})

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	if client.RetryMax <= 0 {
		client.RetryMax = 3
	}
	client.RetryWaitMin = config.RetryWaitMin
	if client.RetryWaitMin <= 0 {
		client.RetryWaitMin = 1 * time.Second
	}
	client.RetryWaitMax = config.RetryWaitMax
	if client.RetryWaitMax <= 0 {
		client.RetryWaitMax = 30 * time.Second
	}
	client.Backoff = rateLimitBackoff
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = newRetryLogger(logger)

	if config.HTTPClient != nil {
		client.HTTPClient = config.HTTPClient
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient.Timeout = timeout
	client.HTTPClient.Transport = &TokenTransport{
		BaseTransport: client.HTTPClient.Transport,
		Token:         token,
		Host:          baseURL.Host,
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		// Convert requests per minute to requests per second
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerMinute/60.0), 1)
	}

	logger.Debug("Papertrail client initialized")
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    limiter,
	}, nil
}

// BaseURL returns the API root every relative path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// RateLimits returns the budget reported by the most recent response. The
// boolean is false until a response carrying rate limit headers was seen.
func (c *Client) RateLimits() (RateLimits, bool) {
	c.limitsMu.RLock()
	defer c.limitsMu.RUnlock()
	return c.limits, c.hasLimits
}

func (c *Client) recordRateLimits(headers http.Header) {
	if !hasRateLimitHeaders(headers) {
		return
	}
	limits, err := ParseRateLimitHeaders(headers)
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed rate limit headers")
		return
	}
	c.limitsMu.Lock()
	c.limits = limits
	c.hasLimits = true
	c.limitsMu.Unlock()

	if limits.Remaining == 0 {
		log.WithField("reset_seconds", limits.Reset).Warn("Papertrail rate limit exhausted")
	}
}

// rateLimitBackoff waits for the window Papertrail announces on 429
// responses and falls back to the library's exponential backoff otherwise.
func rateLimitBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get(headerRateLimitReset); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
				wait := time.Duration(secs) * time.Second
				if wait < min {
					wait = min
				}
				if wait > max {
					wait = max
				}
				return wait
			}
		}
	}
	return retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
}

// resolve turns a resource path or an absolute link into a full URL.
func (c *Client) resolve(target string, query url.Values) (string, error) {
	var u *url.URL
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		parsed, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("%w: link %q", ErrInvalidParameter, target)
		}
		u = parsed
	} else {
		ref, err := url.Parse(strings.TrimLeft(target, "/"))
		if err != nil {
			return "", fmt.Errorf("%w: path %q", ErrInvalidParameter, target)
		}
		u = c.baseURL.ResolveReference(ref)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vals := range query {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, query url.Values, payload any) (*retryablehttp.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	fullURL, err := c.resolve(target, query)
	if err != nil {
		return nil, err
	}

	var body any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		body = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send performs the request and returns the open response for 2xx statuses.
// Any other status is read, closed and returned as *APIError.
func (c *Client) send(req *retryablehttp.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	c.recordRateLimits(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := newAPIError(resp.StatusCode, body)
		log.WithFields(logrus.Fields{
			"method":      req.Method,
			"path":        req.URL.Path,
			"status_code": resp.StatusCode,
		}).Debug("Papertrail returned an error status")
		return nil, apiErr
	}
	return resp, nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// not nil.
func (c *Client) do(ctx context.Context, method, target string, query url.Values, payload, out any) error {
	req, err := c.newRequest(ctx, method, target, query, payload)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, target string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, target, query, nil, out)
}

func (c *Client) postJSON(ctx context.Context, target string, payload, out any) error {
	return c.do(ctx, http.MethodPost, target, nil, payload, out)
}

func (c *Client) putJSON(ctx context.Context, target string, payload, out any) error {
	return c.do(ctx, http.MethodPut, target, nil, payload, out)
}

func (c *Client) delete(ctx context.Context, target string, out any) error {
	return c.do(ctx, http.MethodDelete, target, nil, nil, out)
}

// stream opens a GET request whose body the caller reads and closes.
func (c *Client) stream(ctx context.Context, target string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	return c.send(req)
}

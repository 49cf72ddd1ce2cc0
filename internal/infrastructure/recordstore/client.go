// Package recordstore implements the remote record store API client.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/circuitbreaker"
	"github.com/growthpath-hub/growth-activity-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the record store API client.
type ClientConfig struct {
	// BaseURL is the record store API base URL, including the base path.
	BaseURL string

	// APIKey is the bearer token for authentication.
	APIKey string

	// ResponsesTable and ProgressTable are the table path segments.
	ResponsesTable string
	ProgressTable  string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting.
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance.
	CircuitBreakerConfig circuitbreaker.Config

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables per-request debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		APIKey:               apiKey,
		ResponsesTable:       "responses",
		ProgressTable:        "progress",
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: circuitbreaker.DefaultConfig("recordstore"),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the record store API client. It implements record.Store.
type Client struct {
	config         ClientConfig
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *circuitbreaker.CircuitBreaker
	retrier        *retry.Retrier
	mapper         *Mapper
}

var _ record.Store = (*Client)(nil)

// NewClient creates a new record store API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ResponsesTable == "" {
		config.ResponsesTable = "responses"
	}
	if config.ProgressTable == "" {
		config.ProgressTable = "progress"
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      config.Logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		mapper:      NewMapper(),
	}

	cbConfig := config.CircuitBreakerConfig
	if cbConfig.Name == "" {
		cbConfig.Name = "recordstore"
	}
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		c.logger.Warn("circuit breaker state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
	c.circuitBreaker = circuitbreaker.New(cbConfig)

	c.retrier = retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(500*time.Millisecond),
		retry.WithMaxDelay(10*time.Second),
		retry.WithMultiplier(2.0),
		retry.WithJitter(0.2),
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.Warn("retrying record store request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		}),
	)

	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FindResponse returns the response record for the exact (studentID,
// activityID) pair, or nil when no record exists. The query is limited
// to a single result; when duplicates exist the store returns the first
// match, which keeps repeated reads stable.
func (c *Client) FindResponse(ctx context.Context, studentID shared.StudentID, activityID shared.ActivityID) (*record.Response, error) {
	query := url.Values{}
	query.Set("student_id", studentID.String())
	query.Set("activity_id", activityID.String())
	query.Set("maxRecords", "1")

	return retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*record.Response, error) {
		body, err := c.doRequest(ctx, http.MethodGet, c.config.ResponsesTable, query, nil)
		if err != nil {
			return nil, err
		}

		var list listResponseDTO[responseFieldsDTO]
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, shared.WrapError("recordstore", "FindResponse", shared.ErrInvalidFormat, "parse response list", err)
		}
		if len(list.Records) == 0 {
			return nil, nil
		}
		return c.mapper.ResponseFromDTO(&list.Records[0])
	})
}

// CreateResponse creates a new response record and returns it with the
// store-assigned ID.
func (c *Client) CreateResponse(ctx context.Context, resp record.Response) (*record.Response, error) {
	payload := recordRequestDTO[responseFieldsDTO]{
		Fields: c.mapper.ResponseToFields(resp),
	}

	return retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*record.Response, error) {
		body, err := c.doRequest(ctx, http.MethodPost, c.config.ResponsesTable, nil, payload)
		if err != nil {
			return nil, err
		}

		var created recordDTO[responseFieldsDTO]
		if err := json.Unmarshal(body, &created); err != nil {
			return nil, shared.WrapError("recordstore", "CreateResponse", shared.ErrInvalidFormat, "parse created record", err)
		}
		return c.mapper.ResponseFromDTO(&created)
	})
}

// UpdateResponse updates an existing response record by store ID.
func (c *Client) UpdateResponse(ctx context.Context, id string, resp record.Response) (*record.Response, error) {
	if id == "" {
		return nil, shared.ErrMalformedRecordRequest
	}
	payload := recordRequestDTO[responseFieldsDTO]{
		Fields: c.mapper.ResponseToFields(resp),
	}
	path := c.config.ResponsesTable + "/" + url.PathEscape(id)

	return retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*record.Response, error) {
		body, err := c.doRequest(ctx, http.MethodPatch, path, nil, payload)
		if err != nil {
			return nil, err
		}

		var updated recordDTO[responseFieldsDTO]
		if err := json.Unmarshal(body, &updated); err != nil {
			return nil, shared.WrapError("recordstore", "UpdateResponse", shared.ErrInvalidFormat, "parse updated record", err)
		}
		return c.mapper.ResponseFromDTO(&updated)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CreateProgress appends one progress record. Progress records are
// write-once; there is no update path.
func (c *Client) CreateProgress(ctx context.Context, entry progress.Entry) (*progress.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	payload := recordRequestDTO[progressFieldsDTO]{
		Fields: c.mapper.ProgressToFields(entry),
	}

	return retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*progress.Entry, error) {
		body, err := c.doRequest(ctx, http.MethodPost, c.config.ProgressTable, nil, payload)
		if err != nil {
			return nil, err
		}

		var created recordDTO[progressFieldsDTO]
		if err := json.Unmarshal(body, &created); err != nil {
			return nil, shared.WrapError("recordstore", "CreateProgress", shared.ErrInvalidFormat, "parse created record", err)
		}
		return c.mapper.ProgressFromDTO(&created)
	})
}

// ListProgressSince returns all progress entries completed at or after
// the given time, following pagination offsets until exhausted.
func (c *Client) ListProgressSince(ctx context.Context, since time.Time) ([]progress.Entry, error) {
	var entries []progress.Entry
	offset := ""

	for {
		query := url.Values{}
		query.Set("completed_after", since.UTC().Format(time.RFC3339))
		if offset != "" {
			query.Set("offset", offset)
		}

		list, err := retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*listResponseDTO[progressFieldsDTO], error) {
			body, err := c.doRequest(ctx, http.MethodGet, c.config.ProgressTable, query, nil)
			if err != nil {
				return nil, err
			}

			var page listResponseDTO[progressFieldsDTO]
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, shared.WrapError("recordstore", "ListProgressSince", shared.ErrInvalidFormat, "parse progress list", err)
			}
			return &page, nil
		})
		if err != nil {
			return nil, err
		}

		for i := range list.Records {
			entry, err := c.mapper.ProgressFromDTO(&list.Records[i])
			if err != nil {
				return nil, err
			}
			entries = append(entries, *entry)
		}

		if list.Offset == "" {
			return entries, nil
		}
		offset = list.Offset
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a single HTTP request through the rate limiter and
// circuit breaker, and classifies failures into the domain error
// taxonomy. Server-side and network failures come back retryable;
// malformed requests come back fatal so callers never retry them.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if err := c.circuitBreaker.Allow(); err != nil {
		return nil, shared.WrapError("recordstore", "Request", shared.ErrServiceUnavailable, "circuit breaker rejected request", err)
	}

	if err := c.rateLimiter.Allow(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, shared.WrapError("recordstore", "Request", shared.ErrRateLimited, "rate limiter wait exceeded", err)
	}

	fullURL := c.config.BaseURL + "/" + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, shared.WrapError("recordstore", "Request", shared.ErrInvalidInput, "marshal request body", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, shared.WrapError("recordstore", "Request", shared.ErrInvalidInput, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("record store request",
			slog.String("method", method),
			slog.String("url", fullURL),
		)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.circuitBreaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.WrapError("recordstore", "Request", shared.ErrTimeout, "request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, shared.WrapError("recordstore", "Request", shared.ErrServiceUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.circuitBreaker.RecordFailure()
		return nil, shared.WrapError("recordstore", "Request", shared.ErrServiceUnavailable, "read response body", err)
	}

	if c.config.Debug {
		c.logger.Debug("record store response",
			slog.String("method", method),
			slog.String("url", fullURL),
			slog.Int("status", resp.StatusCode),
			slog.Duration("latency", time.Since(start)),
		)
	}

	return c.classifyResponse(resp, respBody)
}

// classifyResponse maps an HTTP status to either the raw body or a
// domain error, and feeds the circuit breaker.
func (c *Client) classifyResponse(resp *http.Response, body []byte) ([]byte, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.circuitBreaker.RecordSuccess()
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		// The server is alive, just throttling us. Do not trip the
		// breaker; honor Retry-After and let the retrier back off.
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.rateLimiter.RecordRateLimitHit(retryAfter)
		c.logger.Warn("record store rate limit hit",
			slog.Duration("retry_after", retryAfter),
		)
		return nil, shared.ErrRecordStoreRateLimited

	case resp.StatusCode >= 500:
		c.circuitBreaker.RecordFailure()
		apiErr := parseAPIError(resp.StatusCode, body)
		return nil, shared.WrapError("recordstore", "Request", shared.ErrServiceUnavailable, "server error", apiErr)

	case resp.StatusCode == http.StatusNotFound:
		c.circuitBreaker.RecordSuccess()
		return nil, shared.ErrRecordNotFound

	default:
		// 4xx other than 404: the request itself is malformed. Retrying
		// the same payload cannot succeed, so this is fatal.
		c.circuitBreaker.RecordSuccess()
		apiErr := parseAPIError(resp.StatusCode, body)
		return nil, shared.WrapError("recordstore", "Request", shared.ErrInvalidInput, "rejected request", apiErr)
	}
}

// parseAPIError decodes the platform's error body, falling back to a
// bare status error when the body is not JSON.
func parseAPIError(statusCode int, body []byte) *apiErrorDTO {
	apiErr := &apiErrorDTO{StatusCode: statusCode}
	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
		apiErr.StatusCode = statusCode
	}
	return apiErr
}

// parseRetryAfter interprets the Retry-After header, defaulting to 30s.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 30 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

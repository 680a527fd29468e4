// Package search provides the sink client that upserts film catalog
// documents into the search engine's movies index.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/filmcatalog/pges-sync/internal/retry"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRequestsPerSec = 20
)

// ErrIndexFailed is returned (wrapped) when an Index call fails without
// retrying: the search engine answered with a 4xx status, or ctx ended while
// the call waited for the rate limiter or the retry envelope. Network errors
// and 5xx responses are retried without bound instead.
var ErrIndexFailed = errors.New("search index upsert failed")

// Client is the sink the pipeline driver calls once per document (C8). It
// wraps a single-document upsert — PUT {index}/_doc/{id} — in the same
// retry envelope as the database session, since the operation is
// idempotent, and throttles outbound calls with a token bucket so a large
// Merger flush cannot overwhelm the search engine.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *slog.Logger
}

// NewClient builds a Client pointed at baseURL (scheme://host:port, no
// trailing slash) under policy's retry schedule, throttled to
// requestsPerSec sustained calls with a burst of the same size (0 uses the
// default of 20/s).
func NewClient(baseURL string, requestsPerSec int, policy retry.Policy) *Client {
	if requestsPerSec <= 0 {
		requestsPerSec = defaultRequestsPerSec
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout)

	return &Client{
		http:    http,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		policy:  policy,
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

// Index upserts document under id in index, retrying transient failures
// (network errors, 5xx responses) unbounded under the configured retry
// policy. A 4xx response is treated as a fatal, non-retryable error: it
// indicates a malformed document, not a transient condition.
func (c *Client) Index(ctx context.Context, index, id string, document any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexFailed, err)
	}

	return retry.Do(ctx, c.policy, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(document).
			Put(fmt.Sprintf("/%s/_doc/%s", index, id))
		if err != nil {
			c.logger.Error("search index request failed, will retry",
				slog.String("index", index), slog.String("id", id), slog.String("error", err.Error()))

			return err
		}

		if resp.StatusCode() >= 500 {
			c.logger.Error("search engine returned server error, will retry",
				slog.String("index", index), slog.String("id", id), slog.Int("status", resp.StatusCode()))

			return fmt.Errorf("%w: status %d", ErrIndexFailed, resp.StatusCode())
		}

		if resp.StatusCode() >= 400 {
			return retry.Permanent(fmt.Errorf("%w: status %d: %s", ErrIndexFailed, resp.StatusCode(), resp.String()))
		}

		return nil
	})
}

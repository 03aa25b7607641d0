package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// RetryableStatuses are the transient HTTP statuses worth another attempt.
var RetryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var errRetryableStatus = errors.New("retryable status")

// RetryTransport retries idempotent requests on transient failures with
// exponential backoff. When the attempt budget is spent on a retryable
// status, the last response is returned as-is for the caller to classify.
type RetryTransport struct {
	Next           http.RoundTripper
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.Next.RoundTrip(req)
	}
	if t.MaxRetries <= 0 {
		return t.Next.RoundTrip(req)
	}

	ctx := req.Context()
	maxTries := uint(t.MaxRetries + 1)
	attempt := uint(0)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.InitialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.1
	if t.MaxBackoff > 0 {
		policy.MaxInterval = t.MaxBackoff
	}

	operation := func() (*http.Response, error) {
		attempt++
		resp, err := t.Next.RoundTrip(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !RetryableStatuses[resp.StatusCode] || attempt >= maxTries {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d from %s", errRetryableStatus, resp.StatusCode, req.URL.Redacted())
	}

	notify := func(err error, wait time.Duration) {
		log.WithError(err).Warnf("[Retry] %s %s failed (attempt %d/%d), retrying in %s", req.Method, req.URL.Redacted(), attempt, maxTries, wait.Round(time.Millisecond))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(notify),
	)
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"news-crawler/pkg/models"
	"news-crawler/pkg/utils"
)

const (
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 3 * time.Second
)

// Fetcher performs HTTP GETs with bounded retry on transient transport
// errors. HTTP status handling is the caller's concern: any response,
// including 4xx/5xx, is returned without retrying, matching the crawl
// policy that protocol errors fail immediately.
type Fetcher struct {
	client     *http.Client
	maxRetries int
	userAgent  string
	log        *logrus.Logger
}

// NewFetcher creates a Fetcher around the shared HTTP client.
func NewFetcher(client *http.Client, maxRetries int, userAgent string, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		client:     client,
		maxRetries: maxRetries,
		userAgent:  userAgent,
		log:        log,
	}
}

// NewRequest builds a GET request carrying the configured User-Agent and,
// when prior document state is given, the conditional headers that let the
// origin answer 304 Not Modified.
func (f *Fetcher) NewRequest(ctx context.Context, url string, meta *models.DocumentMeta) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	if meta != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}
	return req, nil
}

// Do executes the request with up to maxRetries additional attempts after
// transient transport failures, sleeping an exponentially growing, capped,
// jittered delay between attempts. Context cancellation aborts immediately.
func (f *Fetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		if attempt > 0 {
			delay := backoffDelay(attempt)
			reqLog.WithFields(logrus.Fields{
				"attempt": attempt, "max_retries": f.maxRetries, "delay": delay,
			}).Warn("Retrying request after transport error")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled (%v) during retry delay: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err == nil {
			// Any status counts as an answer; classification happens upstream.
			return resp, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reqLog.Warnf("Context cancelled/timed out during HTTP request: %v", err)
			return nil, err
		}
		lastErr = err
		reqLog.Debugf("Transport error on attempt %d: %v", attempt, err)
	}

	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// FetchBody is the discovery-side convenience: GET the URL, drain the body,
// and return status plus bytes. The pool uses Do directly because it needs
// the response headers for cache validation.
func (f *Fetcher) FetchBody(ctx context.Context, url string) (int, []byte, error) {
	req, err := f.NewRequest(ctx, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := f.Do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	return resp.StatusCode, body, nil
}

// backoffDelay computes the sleep before retry attempt n:
// initial * 2^(n-1), capped, with +/-10% jitter to desynchronize workers.
func backoffDelay(attempt int) time.Duration {
	backoff := float64(initialRetryDelay) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	var jitter time.Duration
	if delay > 0 {
		jitterRange := int64(delay) / 5 // 20% range width for +/-10%
		if jitterRange > 0 {
			jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
		}
	}
	final := delay + jitter
	if final < 0 {
		final = 0
	}
	return final
}

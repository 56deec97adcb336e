package exchange

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/adshao/go-binance/v2/common"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 1 * time.Second
	defaultRetryMax      = 30 * time.Second
)

// retryableAPICodes are venue error codes worth retrying: transient
// server-side failures, timeouts and rate limiting.
var retryableAPICodes = map[int64]bool{
	-1000: true, // UNKNOWN
	-1001: true, // DISCONNECTED
	-1003: true, // TOO_MANY_REQUESTS
	-1007: true, // TIMEOUT
	-1016: true, // SERVICE_SHUTTING_DOWN
}

// isRetryable reports whether err is transient. Order rejections and
// other deterministic API errors fail fast so the caller can surface
// them immediately.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return retryableAPICodes[apiErr.Code]
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// retry runs fn up to attempts times, backing off exponentially with
// jitter between tries. Non-retryable errors and context cancellation
// stop the loop immediately.
func retry(ctx context.Context, attempts int, base, max time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		delay := retryDelay(i, base, max)
		log.Printf("Exchange | Attempt %d/%d failed, retrying in %v: %v", i, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// retryDelay doubles the base delay per attempt, caps it at max and
// adds up to 20% jitter to avoid thundering herds.
func retryDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}

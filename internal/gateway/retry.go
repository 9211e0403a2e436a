package gateway

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	ierr "github.com/duespay/duespay/internal/errors"
	"github.com/duespay/duespay/internal/logger"
)

// AttemptPolicy bounds one local attempt against the gateway.
type AttemptPolicy struct {
	// Timeout is the per-attempt deadline. It grows across attempts so a
	// slow-but-healthy gateway eventually answers.
	Timeout time.Duration
	// Delay is waited before the attempt (zero for the first).
	Delay time.Duration
}

// RetryPolicy is the full attempt table. Only network-level failures
// (timeouts, connection errors) consume attempts; gateway declines are
// business outcomes and return immediately.
type RetryPolicy []AttemptPolicy

// DefaultRetryPolicy allows three attempts with growing timeouts.
var DefaultRetryPolicy = RetryPolicy{
	{Timeout: 15 * time.Second},
	{Timeout: 30 * time.Second, Delay: 2 * time.Second},
	{Timeout: 60 * time.Second, Delay: 5 * time.Second},
}

// doWithRetry drives call through the policy table. The call is handed a
// context bounded by the attempt's timeout; it must be safe to resubmit
// under the same transaction number, which is what makes a timed-out
// attempt indeterminate rather than dangerous.
func doWithRetry[T any](ctx context.Context, policy RetryPolicy, log *logger.Logger, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if len(policy) == 0 {
		policy = DefaultRetryPolicy
	}

	var lastErr error
	for i, attempt := range policy {
		if attempt.Delay > 0 {
			select {
			case <-time.After(attempt.Delay):
			case <-ctx.Done():
				return zero, ierr.WithError(ctx.Err()).
					WithHint("Payment could not be processed").
					Mark(ierr.ErrGatewayTimeout)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attempt.Timeout)
		result, err := call(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		if !isNetworkError(err) {
			return zero, err
		}

		lastErr = err
		log.Warnw("gateway network failure, will retry",
			"attempt", i+1,
			"max_attempts", len(policy),
			"timeout", attempt.Timeout.String(),
			"error", err)
	}

	return zero, ierr.WithError(lastErr).
		WithHint("Payment could not be processed").
		WithReportableDetails(map[string]interface{}{
			"attempts": len(policy),
		}).
		Mark(ierr.ErrGatewayTimeout)
}

// isNetworkError distinguishes transport-level failures, which are worth a
// local retry, from everything else, which is not.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}

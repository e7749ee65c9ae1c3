package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs op under the client's bounded exponential-backoff policy.
// Transport failures and 5xx responses are retried; 4xx responses are
// treated as permanent since retrying an invalid request cannot succeed.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.status >= 400 && se.status < 500 {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries-1), ctx))
}

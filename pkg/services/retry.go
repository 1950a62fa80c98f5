package services

import (
	"context"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/cenkalti/backoff/v4"
)

const storeRetries = 3

// retryUpstream repite op mientras falle con errores upstream. Solo se usa con
// escrituras idempotentes; cualquier otro error corta en el primer intento.
func retryUpstream(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errs.IsUpstream(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, storeRetries), ctx))
}

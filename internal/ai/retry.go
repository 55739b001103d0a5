package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Outcome is the explicit result of one attempt or of a whole retry loop.
type Outcome[T any] struct {
	Value      T
	Err        error
	Retryable  bool
	RetryAfter time.Duration
	Attempts   int
}

// OK reports success.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Attempt wraps a call result, classifying a failure.
func Attempt[T any](v T, err error) Outcome[T] {
	if err == nil {
		return Outcome[T]{Value: v}
	}
	retryable, after := Classify(err)
	return Outcome[T]{Value: v, Err: err, Retryable: retryable, RetryAfter: after}
}

// Classify decides whether err is worth another attempt, and how long the
// provider asked us to wait.
//
// Retryable: rate limits, 5xx, timeouts, dropped or refused connections,
// empty or undecodable responses. Everything else, including auth, bad
// requests, unknown models, quota, oversized input and cancellation, is not.
func Classify(err error) (retryable bool, retryAfter time.Duration) {
	if err == nil {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true, rl.RetryAfter
	}
	var auth *AuthError
	var bad *BadRequestError
	var nf *ModelNotFoundError
	var quota *QuotaExceededError
	var ctxLen *ContextLengthError
	var fatal *FatalError
	switch {
	case errors.As(err, &auth), errors.As(err, &bad), errors.As(err, &nf),
		errors.As(err, &quota), errors.As(err, &ctxLen), errors.As(err, &fatal),
		errors.Is(err, ErrMissingAPIKey):
		return false, 0
	}

	var srv *ServerError
	var unreach *UnreachableError
	if errors.As(err, &srv) || errors.As(err, &unreach) {
		return true, 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		sc := apiErr.StatusCode
		return sc == http.StatusRequestTimeout || sc == http.StatusTooManyRequests || sc >= 500, 0
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrMalformedResponse) {
		return true, 0
	}
	return isRetryableNetErr(err), 0
}

func isRetryableNetErr(err error) bool {
	// A per-request deadline (http.Client.Timeout) surfaces as a net timeout.
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Backoff is an exponential schedule with jitter, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter perturbs each delay; nil means withJitter (+/- 20%).
	Jitter func(time.Duration) time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = withJitter
	}
	d = jitter(d)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Sleep waits for d or until ctx is done. Tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the configured defaults: 3 attempts, 500ms doubling to 4s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: Backoff{Base: 500 * time.Millisecond, Max: 4 * time.Second}}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry calls fn until it succeeds, fails non-retryably, or MaxAttempts
// calls have been made. It never calls fn more than MaxAttempts times. When
// attempts run out the returned error wraps ErrRetriesExhausted and the last
// cause.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) Outcome[T]) Outcome[T] {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}

	var last Outcome[T]
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome[T]{Err: err, Attempts: attempt - 1}
		}
		out := fn(ctx, attempt)
		out.Attempts = attempt
		if out.Err == nil || !out.Retryable {
			return out
		}
		last = out
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff.Delay(attempt)
		if out.RetryAfter > wait {
			wait = out.RetryAfter
			if p.Backoff.Max > 0 && wait > p.Backoff.Max {
				wait = p.Backoff.Max
			}
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return Outcome[T]{Err: err, Attempts: attempt}
		}
	}
	last.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, last.Attempts, last.Err)
	return last
}

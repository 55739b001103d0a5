package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Completion is a successful generation.
type Completion struct {
	Text      string
	Attempts  int
	Usage     Usage
	RequestID string
}

// Completer runs single-attempt Runtime calls under a retry Policy.
type Completer struct {
	rt     Runtime
	policy Policy
	logger *slog.Logger
}

func NewCompleter(rt Runtime, policy Policy, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Completer{rt: rt, policy: policy, logger: logger}
}

// Complete returns the generated text. Transient failures are retried; if
// every attempt fails the error wraps ErrRetriesExhausted. A non-retryable
// failure is returned as *FatalError. Cancellation of ctx is returned as is.
func (c *Completer) Complete(ctx context.Context, req GenerateRequest) (Completion, error) {
	out := Retry(ctx, c.policy, func(ctx context.Context, attempt int) Outcome[*GenerateResponse] {
		resp, err := c.rt.Generate(ctx, req)
		res := Attempt(resp, err)
		if res.Err != nil && res.Retryable {
			c.logger.Debug("transient provider failure",
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts,
				"model", req.Model,
				"error", res.Err)
		}
		return res
	})

	if out.Err == nil {
		resp := out.Value
		return Completion{
			Text:      resp.Text(),
			Attempts:  out.Attempts,
			Usage:     resp.Usage,
			RequestID: resp.RequestID,
		}, nil
	}
	if ctx.Err() != nil && (errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded)) {
		return Completion{Attempts: out.Attempts}, ctx.Err()
	}
	if errors.Is(out.Err, ErrRetriesExhausted) {
		return Completion{Attempts: out.Attempts}, out.Err
	}
	var fatal *FatalError
	if errors.As(out.Err, &fatal) {
		return Completion{Attempts: out.Attempts}, fatal
	}
	return Completion{Attempts: out.Attempts}, &FatalError{Err: out.Err}
}

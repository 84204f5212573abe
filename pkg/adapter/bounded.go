package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Observer is notified after every completion call with the adapter name and
// an outcome of "ok", "timeout" or "error".
type Observer func(adapter, outcome string, elapsed time.Duration)

// Bounded wraps an adapter so every call carries a default model and a
// deadline. It never retries.
type Bounded struct {
	next     Adapter
	model    string
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// BoundedOption configures a Bounded adapter.
type BoundedOption func(*Bounded)

// WithLogger sets the logger used for call summaries.
func WithLogger(logger *zap.Logger) BoundedOption {
	return func(b *Bounded) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after each call.
func WithObserver(obs Observer) BoundedOption {
	return func(b *Bounded) {
		b.observer = obs
	}
}

// NewBounded wraps next with a default model and per-call timeout.
func NewBounded(next Adapter, model string, timeout time.Duration, opts ...BoundedOption) *Bounded {
	b := &Bounded{
		next:    next,
		model:   model,
		timeout: timeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the wrapped adapter's identifier.
func (b *Bounded) Name() string {
	return b.next.Name()
}

// Models returns the wrapped adapter's models.
func (b *Bounded) Models() []string {
	return b.next.Models()
}

// Complete forwards the request under a deadline.
func (b *Bounded) Complete(ctx context.Context, req *CompletionRequest) (*Response, error) {
	call := *req
	if call.Model == "" {
		call.Model = b.model
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := b.next.Complete(ctx, &call)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
			err = &AdapterError{Temporary: true, Err: fmt.Errorf("llm call timed out after %s: %w", b.timeout, err)}
		}
		b.logger.Warn("llm call failed",
			zap.String("adapter", b.next.Name()),
			zap.String("model", call.Model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		b.logger.Debug("llm call",
			zap.String("adapter", b.next.Name()),
			zap.String("model", call.Model),
			zap.Bool("json", call.JSON),
			zap.Duration("elapsed", elapsed))
	}
	if b.observer != nil {
		b.observer(b.next.Name(), outcome, elapsed)
	}
	return resp, err
}

// Package supervise restarts failing background tasks with exponential
// backoff, separating transient failures from terminal ones by error
// identity rather than by inspecting process output.
package supervise

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"
)

type terminalError struct {
	err error
}

func (e *terminalError) Error() string {
	return e.err.Error()
}

func (e *terminalError) Unwrap() error {
	return e.err
}

// Terminal wraps err so Run stops instead of retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err should stop the restart loop. Wrapped
// Terminal errors qualify, as does an address bind conflict: a second
// daemon holding the listen address is a condition retrying cannot fix.
func IsTerminal(err error) bool {
	var marker *terminalError
	if errors.As(err, &marker) {
		return true
	}
	return errors.Is(err, syscall.EADDRINUSE)
}

// Options tune the restart loop.
type Options struct {
	// InitialBackoff is the delay after the first failure; it doubles per
	// consecutive failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between restarts.
	MaxBackoff time.Duration
	// HealthyAfter resets the backoff once a run survives this long.
	HealthyAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = time.Minute
	}
	if o.HealthyAfter <= 0 {
		o.HealthyAfter = time.Minute
	}
	return o
}

// Run executes task until it returns nil, fails terminally, or ctx is
// cancelled. Transient failures restart the task after the current
// backoff delay. The terminal error (or ctx.Err) is returned to the
// caller; transient errors are only logged.
func Run(ctx context.Context, log *slog.Logger, name string, opts Options, task func(context.Context) error) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("task", name))
	opts = opts.withDefaults()

	backoff := opts.InitialBackoff
	for {
		started := time.Now()
		err := task(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsTerminal(err) {
			log.Error("task failed, not retrying", slog.Any("error", err))
			return err
		}
		if time.Since(started) >= opts.HealthyAfter {
			backoff = opts.InitialBackoff
		}
		log.Warn("task failed, restarting",
			slog.Any("error", err),
			slog.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}

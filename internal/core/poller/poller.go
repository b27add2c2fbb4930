package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spark-backend/internal/core/types"
)

const DefaultInterval = 10 * time.Second

// StatusClient performs a single status check of a remote job.
type StatusClient interface {
	PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error)
}

// Tick is reported after every poll that left the job unfinished.
type Tick struct {
	Attempt   int
	Operation types.Operation
}

// Poller drives a submitted job to completion with a fixed re-check interval.
// There is no backoff and no retry budget; the loop ends when the job is done,
// a poll fails, or ctx is done.
type Poller struct {
	client   StatusClient
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	// isEntityNotFound recognises the poll failure that means the job or the
	// credential it was submitted with is no longer valid.
	isEntityNotFound func(error) bool
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

func NewPoller(client StatusClient, isEntityNotFound func(error) bool, opts ...Option) *Poller {
	p := &Poller{
		client:           client,
		interval:         DefaultInterval,
		sleep:            Sleep,
		isEntityNotFound: isEntityNotFound,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls op until it is done. An op that is already done is returned as is
// without another status check.
func (p *Poller) Run(ctx context.Context, cred types.Credential, op types.Operation, onTick func(Tick)) (types.Operation, error) {
	current := op
	for attempt := 1; !current.Done; attempt++ {
		next, err := p.client.PollJob(ctx, cred, current)
		if err != nil {
			return p.classify(ctx, current, attempt, err)
		}
		current = next

		if current.Done {
			break
		}

		if onTick != nil {
			onTick(Tick{Attempt: attempt, Operation: current})
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			slog.Warn("stopped polling job", "operation", current.Name, "attempt", attempt, "error", err)
			return current, fmt.Errorf("%w: stopped waiting for job %s: %w", types.ErrTransport, current.Name, err)
		}
	}

	if current.ErrorKind == types.ErrorKindFatal || current.Err != "" {
		slog.Error("job finished in error state", "operation", current.Name, "error", current.Err)
		return current, fmt.Errorf("%w: %s", types.ErrFatalJob, current.Err)
	}

	return current, nil
}

func (p *Poller) classify(ctx context.Context, op types.Operation, attempt int, err error) (types.Operation, error) {
	// A poll cut short by the caller's deadline never reached a verdict on the job.
	if ctxErr := ctx.Err(); ctxErr != nil {
		slog.Warn("stopped polling job", "operation", op.Name, "attempt", attempt, "error", err)
		return op, fmt.Errorf("%w: stopped waiting for job %s: %w", types.ErrTransport, op.Name, ctxErr)
	}
	if p.isEntityNotFound != nil && p.isEntityNotFound(err) {
		slog.Warn("job or credential no longer valid", "operation", op.Name, "attempt", attempt, "error", err)
		op.ErrorKind = types.ErrorKindAuthExpired
		op.Err = err.Error()
		return op, fmt.Errorf("%w: %w", types.ErrAuthExpired, err)
	}
	slog.Error("job status check failed", "operation", op.Name, "attempt", attempt, "error", err)
	op.ErrorKind = types.ErrorKindFatal
	op.Err = err.Error()
	return op, fmt.Errorf("%w: status check failed: %w", types.ErrFatalJob, err)
}

// Locator returns the artifact locator of a finished job. A job that finished
// without one is a fatal condition of its own.
func Locator(op types.Operation) (string, error) {
	if !op.Done {
		return "", fmt.Errorf("%w: job %s is not finished", types.ErrUsage, op.Name)
	}
	if op.ArtifactLocator == "" {
		return "", fmt.Errorf("%w: job succeeded, but no download link was provided", types.ErrFatalJob)
	}
	return op.ArtifactLocator, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

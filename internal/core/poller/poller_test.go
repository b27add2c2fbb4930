package poller_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spark-backend/internal/core/poller"
	"spark-backend/internal/core/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollResult struct {
	op  types.Operation
	err error
}

type scriptedClient struct {
	results []pollResult
	calls   int
	creds   []types.Credential
}

func (c *scriptedClient) PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error) {
	c.calls++
	c.creds = append(c.creds, cred)
	if c.calls > len(c.results) {
		return types.Operation{}, errors.New("polled too many times")
	}
	r := c.results[c.calls-1]
	return r.op, r.err
}

var errNotFound = errors.New("Requested entity was not found.")

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "Requested entity was not found")
}

type recordingSleep struct {
	durations []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return ctx.Err()
}

func pending(name string) types.Operation {
	return types.Operation{Name: name, ErrorKind: types.ErrorKindNone}
}

func TestRunPollsUntilDone(t *testing.T) {
	client := &scriptedClient{results: []pollResult{
		{op: pending("ops/1")},
		{op: pending("ops/1")},
		{op: types.Operation{Name: "ops/1", Done: true, ArtifactLocator: "loc1"}},
	}}
	sleeper := &recordingSleep{}
	p := poller.NewPoller(client, isNotFound, poller.WithSleep(sleeper.sleep), poller.WithInterval(10*time.Second))

	var ticks []int
	cred := types.Credential{Key: "k"}
	final, err := p.Run(context.Background(), cred, pending("ops/1"), func(tick poller.Tick) {
		ticks = append(ticks, tick.Attempt)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeper.durations)
	assert.Equal(t, []int{1, 2}, ticks)
	assert.Equal(t, []types.Credential{cred, cred, cred}, client.creds)

	locator, err := poller.Locator(final)
	require.NoError(t, err)
	assert.Equal(t, "loc1", locator)
}

func TestRunEntityNotFoundShortCircuits(t *testing.T) {
	client := &scriptedClient{results: []pollResult{
		{op: pending("ops/2")},
		{err: errNotFound},
		{op: types.Operation{Name: "ops/2", Done: true, ArtifactLocator: "never"}},
	}}
	p := poller.NewPoller(client, isNotFound, poller.WithSleep((&recordingSleep{}).sleep))

	op, err := p.Run(context.Background(), types.Credential{Key: "k"}, pending("ops/2"), nil)

	require.Error(t, err)
	assert.Equal(t, 2, client.calls)
	assert.ErrorIs(t, err, types.ErrAuthExpired)
	assert.Equal(t, types.FailureAuthExpired, types.KindOf(err))
	assert.Equal(t, types.ErrorKindAuthExpired, op.ErrorKind)
}

func TestRunOtherPollFailureIsFatal(t *testing.T) {
	boom := errors.New("internal error")
	client := &scriptedClient{results: []pollResult{{err: boom}}}
	p := poller.NewPoller(client, isNotFound, poller.WithSleep((&recordingSleep{}).sleep))

	op, err := p.Run(context.Background(), types.Credential{}, pending("ops/3"), nil)

	assert.Equal(t, 1, client.calls)
	assert.ErrorIs(t, err, types.ErrFatalJob)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.ErrorKindFatal, op.ErrorKind)
	assert.Equal(t, "internal error", op.Err)
}

func TestRunDoneWithServerError(t *testing.T) {
	client := &scriptedClient{results: []pollResult{
		{op: types.Operation{Name: "ops/4", Done: true, ErrorKind: types.ErrorKindFatal, Err: "safety filter"}},
	}}
	p := poller.NewPoller(client, isNotFound, poller.WithSleep((&recordingSleep{}).sleep))

	_, err := p.Run(context.Background(), types.Credential{}, pending("ops/4"), nil)

	assert.ErrorIs(t, err, types.ErrFatalJob)
	assert.Contains(t, err.Error(), "safety filter")
}

func TestRunTerminalOperationIsNotPolled(t *testing.T) {
	client := &scriptedClient{}
	p := poller.NewPoller(client, isNotFound)

	done := types.Operation{Name: "ops/5", Done: true, ArtifactLocator: "loc"}
	op, err := p.Run(context.Background(), types.Credential{}, done, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, done, op)
}

func TestRunStopsWhenContextDone(t *testing.T) {
	client := &scriptedClient{results: []pollResult{{op: pending("ops/6")}, {op: pending("ops/6")}}}
	ctx, cancel := context.WithCancel(context.Background())
	p := poller.NewPoller(client, isNotFound, poller.WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := p.Run(ctx, types.Credential{}, pending("ops/6"), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}

type blockingClient struct {
	calls int
}

func (c *blockingClient) PollJob(ctx context.Context, cred types.Credential, op types.Operation) (types.Operation, error) {
	c.calls++
	<-ctx.Done()
	return types.Operation{}, ctx.Err()
}

func TestRunDeadlineDuringPollIsTransportFailure(t *testing.T) {
	client := &blockingClient{}
	p := poller.NewPoller(client, isNotFound, poller.WithSleep((&recordingSleep{}).sleep))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	op, err := p.Run(ctx, types.Credential{Key: "k"}, pending("ops/7"), nil)

	assert.Equal(t, 1, client.calls)
	assert.ErrorIs(t, err, types.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, types.ErrFatalJob)
	assert.Equal(t, types.FailureTransport, types.KindOf(err))
	assert.Equal(t, types.RetryMessage, types.UserMessage(err))
	assert.Equal(t, types.ErrorKindNone, op.ErrorKind)
}

func TestLocator(t *testing.T) {
	_, err := poller.Locator(types.Operation{Done: true})
	assert.ErrorIs(t, err, types.ErrFatalJob)

	_, err = poller.Locator(types.Operation{Done: false, ArtifactLocator: "x"})
	assert.ErrorIs(t, err, types.ErrUsage)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := poller.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, poller.Sleep(context.Background(), time.Millisecond))
}

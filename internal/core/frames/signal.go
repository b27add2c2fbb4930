package frames

import (
	"context"
	"errors"
	"sync"
)

var errRequestPending = errors.New("another request is still pending")

// pendingSignal admits a single outstanding request. The next completion
// notification resolves exactly the one waiter armed for it; notifications
// that arrive with nothing pending are dropped, except errors, which are kept
// and returned by the next arm.
type pendingSignal struct {
	mu     sync.Mutex
	wait   chan error
	failed error
}

func (s *pendingSignal) arm() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		return nil, s.failed
	}
	if s.wait != nil {
		return nil, errRequestPending
	}

	s.wait = make(chan error, 1)
	return s.wait, nil
}

func (s *pendingSignal) resolve(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wait == nil {
		if err != nil && s.failed == nil {
			s.failed = err
		}
		return
	}

	s.wait <- err
	s.wait = nil
}

// await arms the signal, starts the request and blocks until it completes.
// The signal is armed first so that a completion delivered synchronously from
// inside start is not lost.
func (s *pendingSignal) await(ctx context.Context, start func()) error {
	wait, err := s.arm()
	if err != nil {
		return err
	}

	start()

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

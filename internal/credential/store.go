package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"spark-backend/internal/core/types"
)

// Provider hands out the user-selected key for video generation. Views ask
// for a new selection when no usable key is active.
type Provider interface {
	HasActiveCredential(ctx context.Context) bool
	RequestCredentialSelection(ctx context.Context) error
	Current(ctx context.Context) (types.Credential, error)
	Select(ctx context.Context, key string) error
	Invalidate(ctx context.Context, cred types.Credential)
	SelectionRequested(ctx context.Context) bool
}

// Store keeps the selected key in process memory. A key that the service
// reported as expired is dropped only if it is still the selected one, so a
// late failure from an old job cannot clear a freshly selected key.
type Store struct {
	mu        sync.RWMutex
	current   types.Credential
	requested bool
}

func NewStore(initialKey string) *Store {
	s := &Store{}
	if key := strings.TrimSpace(initialKey); key != "" {
		s.current = types.Credential{Key: key}
	}
	return s
}

func (s *Store) HasActiveCredential(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Valid()
}

func (s *Store) RequestCredentialSelection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = true
	slog.Info("credential selection requested")
	return nil
}

func (s *Store) SelectionRequested(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requested
}

// Current returns the active credential or an auth-expired error asking for a
// selection.
func (s *Store) Current(ctx context.Context) (types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.current.Valid() {
		return types.Credential{}, fmt.Errorf("%w: no API key selected", types.ErrAuthExpired)
	}
	return s.current, nil
}

func (s *Store) Select(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: api key must not be empty", types.ErrUsage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = types.Credential{Key: key}
	s.requested = false
	slog.Info("credential selected")
	return nil
}

func (s *Store) Invalidate(ctx context.Context, cred types.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != cred || !cred.Valid() {
		return
	}
	s.current = types.Credential{}
	s.requested = true
	slog.Warn("credential invalidated, selection requested")
}

var _ Provider = (*Store)(nil)

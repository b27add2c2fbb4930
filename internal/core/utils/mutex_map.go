package utils

import (
	"errors"
	"fmt"
	"sync"
)

var ErrKeyBusy = errors.New("key is already held")

// MutexMap hands out one mutex per key. Entries are created on demand and
// dropped once nobody holds or waits on them.
type MutexMap struct {
	edit    sync.Mutex
	holders map[string]int
	mutexes map[string]*sync.Mutex
	maxSize int
}

func NewMutexMap(maxSize int) *MutexMap {
	return &MutexMap{
		holders: make(map[string]int),
		mutexes: make(map[string]*sync.Mutex),
		maxSize: maxSize,
	}
}

// entry must be called with m.edit held.
func (m *MutexMap) entry(key string) (*sync.Mutex, error) {
	if mu, ok := m.mutexes[key]; ok {
		return mu, nil
	}
	if len(m.mutexes) >= m.maxSize {
		return nil, fmt.Errorf("max size reached")
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu, nil
}

func (m *MutexMap) Lock(key string) error {
	m.edit.Lock()
	mu, err := m.entry(key)
	if err != nil {
		m.edit.Unlock()
		return err
	}
	m.holders[key]++
	m.edit.Unlock()

	mu.Lock()
	return nil
}

// TryLock acquires key only if nobody holds or waits on it.
func (m *MutexMap) TryLock(key string) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	if m.holders[key] > 0 {
		return fmt.Errorf("%w: %s", ErrKeyBusy, key)
	}

	mu, err := m.entry(key)
	if err != nil {
		return err
	}
	if !mu.TryLock() {
		return fmt.Errorf("%w: %s", ErrKeyBusy, key)
	}
	m.holders[key]++
	return nil
}

func (m *MutexMap) Unlock(key string) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu, ok := m.mutexes[key]
	if !ok {
		return fmt.Errorf("key %s not found", key)
	}

	mu.Unlock()
	m.holders[key]--

	if m.holders[key] == 0 {
		delete(m.mutexes, key)
		delete(m.holders, key)
	}

	return nil
}

// Held reports whether key is currently locked or awaited.
func (m *MutexMap) Held(key string) bool {
	m.edit.Lock()
	defer m.edit.Unlock()
	return m.holders[key] > 0
}

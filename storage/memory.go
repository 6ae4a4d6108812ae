package storage

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no deadline
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend keeps entries in process. It is meant for tests and
// single-process deployments; nothing survives a restart.
type MemoryBackend struct {
	entries map[string]entry
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewMemoryBackend returns an empty backend. A nil clock means time.Now.
func NewMemoryBackend(clock func() time.Time) *MemoryBackend {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryBackend{
		entries: make(map[string]entry),
		now:     clock,
	}
}

func (s *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, exists := s.entries[key]
	if !exists || e.expired(s.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	e, exists := s.entries[key]
	if !exists || e.expired(now) {
		return nil
	}
	e.expiresAt = now.Add(ttl)
	s.entries[key] = e
	return nil
}

func (s *MemoryBackend) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := s.now()
	e, exists := s.entries[key]
	if !exists || e.expired(now) {
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return -1, true, nil
	}
	return e.expiresAt.Sub(now), true, nil
}

func (s *MemoryBackend) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, key)
	return nil
}

// Cleanup drops every expired entry and returns how many were removed.
func (s *MemoryBackend) Cleanup() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, expired ones included until the next Cleanup.
func (s *MemoryBackend) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// PeriodicCleanup calls Cleanup every interval until ctx is done.
func (s *MemoryBackend) PeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemoryBackend) Close() error {
	return nil
}

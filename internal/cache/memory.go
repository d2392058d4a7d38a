package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/ticketing/internal/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.New()
	}
	return &MemoryStore{clock: c, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// MemoryLocker is a process-local Locker built on MemoryStore semantics.
type MemoryLocker struct {
	mu    sync.Mutex
	clock clock.Clock
	held  map[string]memoryEntry
	seq   atomic.Int64
}

func NewMemoryLocker(c clock.Clock) *MemoryLocker {
	if c == nil {
		c = clock.New()
	}
	return &MemoryLocker{clock: c, held: map[string]memoryEntry{}}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" || ttl <= 0 {
		return "", false, ErrInvalidLock
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}
	token := strconv.FormatInt(l.seq.Add(1), 10)
	l.held[key] = memoryEntry{value: []byte(token), expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[key]; ok && string(entry.value) == token {
		delete(l.held, key)
	}
	return nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.held[key]
	return ok && l.clock.Now().Before(entry.expiresAt)
}

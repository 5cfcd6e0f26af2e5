package stores

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu      sync.Mutex
	session *ResetSession
	gone    bool
}

// MemorySessionStore keeps reset sessions in process memory. Each entry has
// its own lock so concurrent updates to one token serialize while different
// tokens proceed independently.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		entries: make(map[string]*memoryEntry),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session *ResetSession, now time.Time) error {
	if session == nil || session.Token == "" || session.Expired(now) {
		return ErrSessionNotFound
	}

	entry := &memoryEntry{session: session.clone()}

	s.mu.Lock()
	previous := s.entries[session.Token]
	s.entries[session.Token] = entry
	s.mu.Unlock()

	if previous != nil {
		previous.mu.Lock()
		previous.gone = true
		previous.mu.Unlock()
	}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string, now time.Time) (*ResetSession, error) {
	entry := s.lookup(token)
	if entry == nil {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	if entry.gone {
		entry.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if entry.session.Expired(now) {
		entry.gone = true
		entry.mu.Unlock()
		s.evict(token, entry)
		return nil, ErrSessionNotFound
	}
	out := entry.session.clone()
	entry.mu.Unlock()

	return out, nil
}

func (s *MemorySessionStore) Update(
	_ context.Context,
	token string,
	now time.Time,
	fn func(*ResetSession) error,
) (*ResetSession, error) {
	entry := s.lookup(token)
	if entry == nil {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	if entry.gone {
		entry.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if entry.session.Expired(now) {
		entry.gone = true
		entry.mu.Unlock()
		s.evict(token, entry)
		return nil, ErrSessionNotFound
	}

	work := entry.session.clone()
	if err := fn(work); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	work.Token = token
	entry.session = work
	out := work.clone()
	entry.mu.Unlock()

	return out, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string, now time.Time) (*ResetSession, error) {
	s.mu.Lock()
	entry := s.entries[token]
	delete(s.entries, token)
	s.mu.Unlock()

	if entry == nil {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.gone || entry.session.Expired(now) {
		entry.gone = true
		return nil, ErrSessionNotFound
	}
	entry.gone = true
	return entry.session.clone(), nil
}

func (s *MemorySessionStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, entry := range s.entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		entry.mu.Lock()
		if entry.gone || entry.session.Expired(now) {
			entry.gone = true
			delete(s.entries, token)
			removed++
		}
		entry.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemorySessionStore) lookup(token string) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[token]
}

// evict must be called without holding entry.mu.
func (s *MemorySessionStore) evict(token string, entry *memoryEntry) {
	s.mu.Lock()
	if s.entries[token] == entry {
		delete(s.entries, token)
	}
	s.mu.Unlock()
}

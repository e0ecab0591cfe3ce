package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is used when Redis is not configured and in
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, *Response, error) {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.expired(now) {
		s.entries[id] = Entry{Fingerprint: fingerprint, ExpiresAt: now.Add(ttlOrDefault(ttl))}
		return Claimed, nil, nil
	}
	if entry.Fingerprint != fingerprint {
		return 0, nil, ErrKeyReused
	}
	return entry.outcome(), entry.Response, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := hashKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok && entry.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	stored := Response{
		Status: resp.Status,
		Header: storableHeader(resp.Header),
		Body:   append([]byte(nil), resp.Body...),
	}
	s.entries[id] = Entry{Fingerprint: fingerprint, Response: &stored, ExpiresAt: now.Add(ttlOrDefault(ttl))}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, hashKey(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed == limit {
			break
		}
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

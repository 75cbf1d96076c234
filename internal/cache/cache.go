// Package cache holds the response cache that sits in front of the feed pipeline.
//
// Entries expire on a fixed TTL and are never invalidated explicitly; the cache is an
// accelerator, not a source of truth.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type (
	// Store is a key/value cache of rendered responses.
	Store interface {
		// Get returns the entry for the key, reporting false on a miss or an expired entry.
		Get(ctx context.Context, key string) (Entry, bool, error)
		// Put stores the entry, fresh for ttl.
		Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	}

	// Entry is a cached response payload and the headers to serve it with.
	Entry struct {
		Body         []byte
		ContentType  string
		CacheControl string
		ExpiresAt    time.Time
	}
)

// Expired reports whether the entry is stale at the given time.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Memory is an in-process [Store] bounded by entry count.
type Memory struct {
	entries *lru.Cache[string, Entry]
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates a memory store holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}

	return &Memory{
		entries: entries,
		now:     time.Now,
	}, nil
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if e.Expired(m.now()) {
		m.entries.Remove(key)
		return Entry{}, false, nil
	}

	return e, true, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry, ttl time.Duration) error {
	e.ExpiresAt = m.now().Add(ttl)
	m.entries.Add(key, e)

	return nil
}

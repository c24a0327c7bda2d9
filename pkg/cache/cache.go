// Package cache stores search results keyed by a fingerprint of the
// searched log, so repeated runs over the same input skip the search.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/filter"
)

// Cache is a byte-oriented key/value store.
type Cache interface {
	// Get returns the value for key; ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases connections.
	Close() error
}

// Fingerprint identifies the search input: the activity sequences of log in
// trace order and the projection threshold. Trace ids, timestamps and
// resources do not affect a search and are not hashed.
func Fingerprint(log *eventlog.Log, minSize int) string {
	h := sha256.New()
	var buf [binary.MaxVarintLen64]byte

	write := func(n int) {
		k := binary.PutUvarint(buf[:], uint64(n))
		h.Write(buf[:k])
	}

	write(minSize)
	write(len(log.Traces))
	for _, tr := range log.Traces {
		write(len(tr.Events))
		for _, e := range tr.Events {
			write(len(e.Activity))
			h.Write([]byte(e.Activity))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Results stores filter results in a Cache.
type Results struct {
	c Cache
}

// NewResults wraps c.
func NewResults(c Cache) *Results {
	return &Results{c: c}
}

// Lookup returns the cached result for key.
func (r *Results) Lookup(ctx context.Context, key string) (*filter.Result, bool, error) {
	data, ok, err := r.c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var res filter.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, lperrors.Wrap(err, lperrors.CodeCacheFailed, "corrupt cache entry").
			WithContext("key", key)
	}
	return &res, true, nil
}

// Save stores res under key.
func (r *Results) Save(ctx context.Context, key string, res *filter.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return lperrors.Wrap(err, lperrors.CodeCacheFailed, "failed to encode result")
	}
	return r.c.Set(ctx, key, data)
}

// --- Memory ---

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a memory cache; ttl 0 keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Close() error { return nil }

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

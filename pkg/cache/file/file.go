// Package file implements the on-disk FIFO fallback cache backend. The
// ordered mapping is persisted as a gob snapshot on every mutation; a
// missing or corrupt snapshot yields an empty cache.
package file

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	Value     []byte
	ExpiresAt time.Time
}

type snapshot struct {
	Order   []string
	Entries map[string]entry
}

// Cache is a bounded, insertion-ordered cache persisted to a local file.
// Eviction is FIFO from the front; a read hit bumps the entry to the
// tail.
type Cache struct {
	mu         sync.Mutex
	path       string
	maxEntries int
	order      []string
	entries    map[string]entry
	logger     *zap.Logger
	now        func() time.Time
}

// New loads the snapshot at path, tolerating its absence or corruption.
func New(path string, maxEntries int, logger *zap.Logger) *Cache {
	c := &Cache{
		path:       path,
		maxEntries: maxEntries,
		entries:    make(map[string]entry),
		logger:     logger,
		now:        time.Now,
	}
	c.load()
	return c
}

// WithClock overrides the cache's clock. Test hook.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) load() {
	f, err := os.Open(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("failed to open cache snapshot", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		c.logger.Error("failed to decode cache snapshot, starting empty",
			zap.String("path", c.path), zap.Error(err))
		return
	}
	c.order = snap.Order
	c.entries = snap.Entries
	if c.entries == nil {
		c.entries = make(map[string]entry)
	}
}

// save persists the current state. Caller holds the lock.
func (c *Cache) save() {
	f, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*")
	if err != nil {
		c.logger.Error("failed to create cache snapshot", zap.Error(err))
		return
	}
	tmpPath := f.Name()

	err = gob.NewEncoder(f).Encode(snapshot{Order: c.order, Entries: c.entries})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, c.path)
	}
	if err != nil {
		c.logger.Error("failed to write cache snapshot", zap.String("path", c.path), zap.Error(err))
		_ = os.Remove(tmpPath)
	}
}

// Get returns the stored value, deleting it when expired. A hit moves
// the entry to the tail.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.ExpiresAt) {
		c.removeLocked(key)
		c.save()
		return nil, nil
	}
	c.bumpLocked(key)
	return e.Value, nil
}

// Set stores a value, evicting from the front when full.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeLocked(key)
	}
	for len(c.order) >= c.maxEntries {
		c.removeLocked(c.order[0])
	}
	c.order = append(c.order, key)
	c.entries[key] = entry{Value: value, ExpiresAt: c.now().Add(ttl)}
	c.save()
	return nil
}

// Exists reports whether the key is present and unexpired; an expired
// entry is deleted.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !c.now().Before(e.ExpiresAt) {
		c.removeLocked(key)
		c.save()
		return false, nil
	}
	return true, nil
}

// Delete removes the key; it reports whether a key was removed.
func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false, nil
	}
	c.removeLocked(key)
	c.save()
	return true, nil
}

// Ping always succeeds for the local backend.
func (c *Cache) Ping(_ context.Context) error { return nil }

// Name identifies the backend in logs and metrics.
func (c *Cache) Name() string { return "file" }

// Close persists a final snapshot.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.save()
	return nil
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache) bumpLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			break
		}
	}
}

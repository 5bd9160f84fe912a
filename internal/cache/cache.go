// Package cache memoizes key to element associations so repeated lookups can
// skip scanning the document. Entries never outlive their element: a read that
// finds the element detached evicts the entry.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/v0xg/pagehelper/internal/dom"
	"go.uber.org/zap"
)

// Identifier assigns stable identifiers to elements.
type Identifier interface {
	UID(ctx context.Context, el dom.Element) (string, error)
}

// Entry is a cached element.
type Entry struct {
	Key       string      `json:"key"`
	Element   dom.Element `json:"-"`
	UID       string      `json:"uid"`
	Timestamp time.Time   `json:"timestamp"`
}

// Cache holds entries until they are cleared or found detached.
type Cache struct {
	ids    Identifier
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

// New creates an empty cache that names elements with ids.
func New(ids Identifier, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		ids:     ids,
		logger:  logger.Named("cache"),
		now:     time.Now,
		entries: make(map[string]Entry),
	}
}

// CacheElement stores el under key, replacing any previous entry.
func (c *Cache) CacheElement(ctx context.Context, key string, el dom.Element) (Entry, error) {
	uid, err := c.ids.UID(ctx, el)
	if err != nil {
		return Entry{}, fmt.Errorf("cache %q: %w", key, err)
	}
	entry := Entry{Key: key, Element: el, UID: uid, Timestamp: c.now()}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry, nil
}

// Get returns the entry for key while its element is still attached.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return Entry{}, false
	}

	connected, err := entry.Element.Connected(ctx)
	if err == nil && connected {
		return entry, true
	}

	c.mu.Lock()
	// Only evict what we checked; a concurrent CacheElement may have replaced it.
	if cur, ok := c.entries[key]; ok && cur.Element == entry.Element {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	c.logger.Debug("Evicted detached element.", zap.String("key", key), zap.String("uid", entry.UID), zap.Error(err))
	return Entry{}, false
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, including ones not yet found
// detached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

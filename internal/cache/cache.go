// Package cache memoises resolved assistant records for the lifetime of a chat session.
package cache

import (
	"strings"
	"sync"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

// Normalize lower-cases and trims a question so trivially different phrasings share a key.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Option configures a Cache.
type Option func(*Cache)

// WithProjectScope makes keys include the project context, so the same
// question asked about two projects is cached separately.
func WithProjectScope() Option {
	return func(c *Cache) { c.projectScoped = true }
}

// Cache maps normalised questions to records. Entries are never evicted.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]model.Record
	projectScoped bool
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{entries: make(map[string]model.Record)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyFor returns the cache key for a question in a project context.
func (c *Cache) KeyFor(text, project string) string {
	key := Normalize(text)
	if c.projectScoped && project != "" {
		return Normalize(project) + "\x00" + key
	}
	return key
}

// Get returns a copy of the record stored under key.
func (c *Cache) Get(key string) (model.Record, bool) {
	c.mu.Lock()
	rec, ok := c.entries[key]
	c.mu.Unlock()

	metrics.RecordCacheLookup(ok)
	if !ok {
		return model.Record{}, false
	}
	return rec.Clone(), true
}

// Put stores a copy of rec under key, replacing any previous entry.
func (c *Cache) Put(key string, rec model.Record) {
	c.mu.Lock()
	c.entries[key] = rec.Clone()
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"watchtower/internal/logging"
)

// DefaultMaxEntries bounds the in-memory tier.
const DefaultMaxEntries = 512

// DefaultTTL is how long an entry stays valid after creation.
const DefaultTTL = 24 * time.Hour

// Entry is one cached result. A memory entry and its disk copy always
// describe the same (value, created-at) pair; the disk file is written from
// the same Entry that entered memory.
type Entry struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`

	// Debug metadata, not part of the key.
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	PromptPreview string  `json:"prompt_preview,omitempty"`
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	DiskHits  uint64  `json:"disk_hits"`
	Evictions uint64  `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is the two-tier result cache. The memory tier's lock (inside the LRU)
// is only ever held for in-memory work; disk reads and writes happen outside
// it so file latency never blocks concurrent memory lookups.
type Cache struct {
	mem  *lru.Cache[string, *Entry]
	disk *diskTier // nil when persistence is disabled
	ttl  time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	diskHits  atomic.Uint64
	evictions atomic.Uint64

	logger *logging.Logger
	now    func() time.Time
}

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the memory tier; zero uses DefaultMaxEntries.
	MaxEntries int
	// TTL bounds entry lifetime; zero uses DefaultTTL.
	TTL time.Duration
	// Dir enables the persistent tier when non-empty.
	Dir string
}

// New creates a result cache. The cache directory is created when the
// persistent tier is enabled.
func New(opts Options, logger *logging.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	c := &Cache{
		ttl:    opts.TTL,
		logger: logger.Named("cache"),
		now:    time.Now,
	}

	mem, err := lru.NewWithEvict[string, *Entry](opts.MaxEntries, func(string, *Entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.mem = mem

	if opts.Dir != "" {
		disk, err := newDiskTier(opts.Dir)
		if err != nil {
			return nil, err
		}
		c.disk = disk
	}
	return c, nil
}

// Get looks the descriptor up: memory first, then the persistent tier.
// Expired entries are removed lazily on read. A disk hit is promoted into
// memory before returning.
func (c *Cache) Get(d Descriptor) (string, bool) {
	key := d.Key()

	if entry, ok := c.mem.Get(key); ok {
		if c.expired(entry) {
			c.mem.Remove(key)
			c.removeFromDisk(key)
			c.misses.Add(1)
			return "", false
		}
		c.hits.Add(1)
		return entry.Value, true
	}

	if c.disk != nil {
		if entry, ok := c.readFromDisk(key); ok {
			if c.expired(entry) {
				c.removeFromDisk(key)
				c.misses.Add(1)
				return "", false
			}
			// Promote; the LRU evicts its own victim if full.
			c.mem.Add(key, entry)
			c.hits.Add(1)
			c.diskHits.Add(1)
			return entry.Value, true
		}
	}

	c.misses.Add(1)
	return "", false
}

// Set stores a result. The memory index is updated first (the LRU holds its
// own short lock); the disk write happens afterwards, outside any cache
// lock, and its failure is logged rather than returned; a broken cache disk
// must not fail the business call that produced the value.
func (c *Cache) Set(d Descriptor, value string) {
	entry := &Entry{
		Value:         value,
		CreatedAt:     c.now(),
		Model:         d.Model,
		Temperature:   d.Temperature,
		PromptPreview: preview(d.Prompt),
	}
	key := d.Key()
	c.mem.Add(key, entry)

	if c.disk != nil {
		if err := c.disk.write(key, entry); err != nil {
			c.logger.Warn("cache disk write failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Stats reports hit/miss counts and the derived hit rate.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Hits:      hits,
		Misses:    misses,
		DiskHits:  c.diskHits.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.mem.Len(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Purge drops every entry from both tiers. Used by tests and operational
// resets.
func (c *Cache) Purge() {
	c.mem.Purge()
	if c.disk != nil {
		if err := c.disk.purge(); err != nil {
			c.logger.Warn("cache disk purge failed", zap.Error(err))
		}
	}
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) readFromDisk(key string) (*Entry, bool) {
	entry, err := c.disk.read(key)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (c *Cache) removeFromDisk(key string) {
	if c.disk == nil {
		return
	}
	if err := c.disk.remove(key); err != nil {
		c.logger.Debug("cache disk remove failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

const previewLen = 80

func preview(prompt string) string {
	if len(prompt) <= previewLen {
		return prompt
	}
	return prompt[:previewLen]
}

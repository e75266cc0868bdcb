package cache

import "time"

// SetNowFunc overrides the cache clock. Test hook only.
func (c *Cache) SetNowFunc(now func() time.Time) {
	c.now = now
}

package script

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"sync"
)

// Cache holds loaded Lua scripts indexed by SHA1
type Cache struct {
	mu      sync.RWMutex
	scripts map[string]string // SHA1 -> script source
}

// NewCache creates an empty script cache
func NewCache() *Cache {
	return &Cache{scripts: make(map[string]string)}
}

// SHA1 computes the SHA1 hash of a script
func SHA1(script string) string {
	h := sha1.New()
	h.Write([]byte(script))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a script by SHA1
func (c *Cache) Get(sha string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	script, ok := c.scripts[strings.ToLower(sha)]
	return script, ok
}

// Store caches a script and returns its SHA1
func (c *Cache) Store(script string) string {
	sha := SHA1(script)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[sha] = script
	return sha
}

// Exists checks if scripts exist by SHA1
func (c *Cache) Exists(shas []string) []bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make([]bool, len(shas))
	for i, sha := range shas {
		_, results[i] = c.scripts[strings.ToLower(sha)]
	}
	return results
}

// Flush clears all cached scripts
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = make(map[string]string)
}

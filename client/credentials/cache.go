// Package credentials holds the client's in-memory access credential behind
// an explicit update gate. The gate starts blocked and is opened only while a
// login, registration, or refresh flow is actively running, so a late network
// response cannot resurrect a credential after logout.
package credentials

import (
	"sync"

	"github.com/rs/zerolog"
)

type Cache struct {
	mu      sync.Mutex
	token   string
	blocked bool
	logger  zerolog.Logger
}

func NewCache(logger zerolog.Logger) *Cache {
	return &Cache{
		blocked: true,
		logger:  logger.With().Str("component", "credentials").Logger(),
	}
}

func (c *Cache) AllowUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = false
}

func (c *Cache) BlockUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = true
}

func (c *Cache) UpdatesBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// Set stores a credential. Blocked or empty writes are dropped silently: the
// caller treats this as logout having won the race, not as an error.
func (c *Cache) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blocked {
		c.logger.Debug().Msg("ignoring access token update after session terminated")
		return
	}
	if token == "" {
		c.logger.Debug().Msg("rejected empty access token")
		return
	}
	c.token = token
}

func (c *Cache) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Package memory keeps track of chat messages that have already been handled
// so a poll loop never acts on the same message twice.
package memory

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLimit is the number of message keys remembered when Config.Limit is zero.
const DefaultLimit = 512

// Config holds memory configuration.
type Config struct {
	// Limit bounds the number of remembered keys. Oldest keys are evicted first.
	Limit int
}

// Manager remembers handled message keys for the lifetime of one run.
type Manager struct {
	config Config
	seen   *lru.Cache[string, time.Time]

	mu      sync.Mutex
	started time.Time
}

// NewManager creates a new memory manager.
func NewManager(cfg *Config) *Manager {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, time.Time](c.Limit)
	return &Manager{
		config:  c,
		seen:    cache,
		started: time.Now(),
	}
}

// StartRun forgets everything and records the run start time.
func (m *Manager) StartRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen.Purge()
	m.started = time.Now()
}

// Started returns when the current run began.
func (m *Manager) Started() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Mark records keys as handled.
func (m *Manager) Mark(keys ...string) {
	now := time.Now()
	for _, k := range keys {
		if k == "" {
			continue
		}
		m.seen.Add(k, now)
	}
}

// Seen reports whether key was handled. It does not refresh the key's recency.
func (m *Manager) Seen(key string) bool {
	return m.seen.Contains(key)
}

// Len returns the number of remembered keys.
func (m *Manager) Len() int {
	return m.seen.Len()
}

// Limit returns the configured capacity.
func (m *Manager) Limit() int {
	return m.config.Limit
}

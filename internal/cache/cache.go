// Package cache stores rendered bootstrap snapshots for a short time so
// concurrent page loads share one round of upstream probes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/config"
)

// Store is implemented by the memory and redis backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats describes a store for the status endpoints.
type Stats struct {
	Backend    string `json:"backend"`
	Size       int    `json:"size"`
	MaxEntries int    `json:"max_entries,omitempty"`
	TTLSec     int    `json:"ttl_sec"`
}

// Key derives a fixed-length key from its parts.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// New builds the configured backend. It returns nil when caching is off.
func New(cfg config.CacheConfig, logger *zap.Logger) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.MaxEntries, cfg.TTLSec), nil
	case "redis":
		r, err := NewRedis(cfg.RedisAddr, cfg.TTLSec, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type entry struct {
	data      []byte
	createdAt time.Time
}

// Memory is an in-process store that evicts the oldest entry at capacity.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

func NewMemory(maxEntries int, ttlSec int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	c := &Memory{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        time.Duration(ttlSec) * time.Second,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.cleanup()
			}
		}
	}()
	return c
}

// Get returns cached data and true if found and not expired.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil, false
	}
	return e.data, true
}

func (c *Memory) Set(_ context.Context, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldestTime time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.createdAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = e.createdAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = &entry{data: data, createdAt: c.now()}
}

func (c *Memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Memory) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *Memory) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Backend:    "memory",
		Size:       len(c.entries),
		MaxEntries: c.maxEntries,
		TTLSec:     int(c.ttl / time.Second),
	}
}

// Close stops the cleanup goroutine.
func (c *Memory) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

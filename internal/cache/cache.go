package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dataExt = ".data"
	metaExt = ".meta"
)

// ErrMiss is returned by Get for absent or expired keys
var ErrMiss = errors.New("cache miss")

// Cache defines the interface for local file caching operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Cleanup(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
}

// Entry is the metadata stored next to each cached blob
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

// Stats represents cache statistics
type Stats struct {
	TotalEntries int64   `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
	HitRate      float64 `json:"hit_rate"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
}

// FileCache stores each entry as <hash>.data plus <hash>.meta in one directory
type FileCache struct {
	directory   string
	maxBytes    int64
	defaultTTL  time.Duration
	mu          sync.Mutex
	hits        atomic.Int64
	misses      atomic.Int64
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewFileCache creates the cache directory if needed. A positive cleanupFreq
// starts a background sweep of expired entries until Close.
func NewFileCache(directory string, maxSizeMB int, defaultTTL, cleanupFreq time.Duration) (*FileCache, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}

		directory = filepath.Join(home, directory[2:])
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &FileCache{
		directory:   directory,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
		defaultTTL:  defaultTTL,
		stopCleanup: make(chan struct{}),
	}

	if cleanupFreq > 0 {
		go c.backgroundCleanup(cleanupFreq)
	}

	return c, nil
}

// Directory returns the resolved cache directory
func (c *FileCache) Directory() string {
	return c.directory
}

// Get returns the blob stored under key, or an error wrapping ErrMiss
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.basePath(key)

	entry, err := readEntry(base + metaExt)
	if err != nil {
		c.misses.Add(1)

		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMiss, key)
		}

		return nil, err
	}

	if time.Now().After(entry.ExpiresAt) {
		c.misses.Add(1)
		removeEntry(base)

		return nil, fmt.Errorf("%w: %s expired", ErrMiss, key)
	}

	data, err := os.ReadFile(base + dataExt)
	if err != nil {
		c.misses.Add(1)
		return nil, fmt.Errorf("%w: %s: %v", ErrMiss, key, err)
	}

	c.hits.Add(1)

	return data, nil
}

// Set stores data under key. A zero ttl uses the cache default.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	entry := Entry{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Size:      int64(len(data)),
	}

	if err := c.enforceSize(entry.Size); err != nil {
		return fmt.Errorf("failed to enforce cache size: %w", err)
	}

	base := c.basePath(key)

	if err := os.WriteFile(base+dataExt, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache data: %w", err)
	}

	meta, err := json.Marshal(entry)
	if err != nil {
		os.Remove(base + dataExt)
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	if err := os.WriteFile(base+metaExt, meta, 0o600); err != nil {
		os.Remove(base + dataExt)
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	return nil
}

// Delete removes key; deleting an absent key is not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removeEntry(c.basePath(key))

	return nil
}

// Clear removes every entry and resets the hit counters
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() && isCacheFile(e.Name()) {
			os.Remove(filepath.Join(c.directory, e.Name()))
		}
	}

	c.hits.Store(0)
	c.misses.Store(0)

	return nil
}

// Cleanup removes expired entries
func (c *FileCache) Cleanup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	metas, err := c.metaFiles()
	if err != nil {
		return err
	}

	now := time.Now()

	for _, name := range metas {
		base := filepath.Join(c.directory, strings.TrimSuffix(name, metaExt))

		entry, err := readEntry(base + metaExt)
		if err != nil {
			continue
		}

		if now.After(entry.ExpiresAt) {
			removeEntry(base)
		}
	}

	return nil
}

// GetStats returns entry counts, total size and hit rate
func (c *FileCache) GetStats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	size, count, err := c.usage()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalEntries: count,
		TotalSize:    size,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return stats, nil
}

// Close stops the background cleanup goroutine
func (c *FileCache) Close() error {
	c.cleanupOnce.Do(func() {
		close(c.stopCleanup)
	})

	return nil
}

func (c *FileCache) basePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.directory, hex.EncodeToString(sum[:])[:16])
}

func (c *FileCache) metaFiles() ([]string, error) {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), metaExt) {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

// usage sums the size of data files; callers hold mu
func (c *FileCache) usage() (size, count int64, err error) {
	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dataExt) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		size += info.Size()
		count++
	}

	return size, count, nil
}

// enforceSize evicts the oldest entries until incoming bytes fit; callers hold mu
func (c *FileCache) enforceSize(incoming int64) error {
	current, _, err := c.usage()
	if err != nil {
		return err
	}

	if current+incoming <= c.maxBytes {
		return nil
	}

	metas, err := c.metaFiles()
	if err != nil {
		return err
	}

	type candidate struct {
		base    string
		created time.Time
		size    int64
	}

	var candidates []candidate

	for _, name := range metas {
		base := filepath.Join(c.directory, strings.TrimSuffix(name, metaExt))

		entry, err := readEntry(base + metaExt)
		if err != nil {
			continue
		}

		candidates = append(candidates, candidate{base: base, created: entry.CreatedAt, size: entry.Size})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].created.Before(candidates[j].created)
	})

	needed := current + incoming - c.maxBytes

	var freed int64

	for _, cand := range candidates {
		if freed >= needed {
			break
		}

		removeEntry(cand.base)
		freed += cand.size
	}

	return nil
}

func (c *FileCache) backgroundCleanup(freq time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Cleanup(context.Background())
		case <-c.stopCleanup:
			return
		}
	}
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to parse cache metadata: %w", err)
	}

	return entry, nil
}

func removeEntry(base string) {
	os.Remove(base + dataExt)
	os.Remove(base + metaExt)
}

func isCacheFile(name string) bool {
	return strings.HasSuffix(name, dataExt) || strings.HasSuffix(name, metaExt)
}

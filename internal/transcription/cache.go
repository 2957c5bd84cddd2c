package transcription

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fingerprintPrefix is how much of the file head feeds the fingerprint.
const fingerprintPrefix = 1024

// Fingerprint identifies a media file by size and the md5 of its first KiB.
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("fingerprint: stat: %w", err)
	}
	head := make([]byte, fingerprintPrefix)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("fingerprint: read: %w", err)
	}
	sum := md5.Sum(head[:n]) //nolint:gosec
	return fmt.Sprintf("%d-%s", info.Size(), hex.EncodeToString(sum[:])), nil
}

// Cache stores transcripts by fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, result Result) error
}

type memoryEntry struct {
	result  Result
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns a cache whose entries live for ttl (forever when ttl <= 0).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false, nil
	}
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		delete(c.entries, key)
		return Result{}, false, nil
	}
	return entry.result, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, result Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{result: result}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}

// RedisCache shares transcripts between workers.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores entries under <prefix>:transcript:<key>.
func NewRedisCache(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "clipforge"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(k string) string { return c.prefix + ":transcript:" + k }

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("transcript cache get: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false, fmt.Errorf("transcript cache decode: %w", err)
	}
	return result, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, result Result) error {
	result.Cached = false
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("transcript cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("transcript cache set: %w", err)
	}
	return nil
}

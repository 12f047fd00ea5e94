package cache

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultResultPrefix namespaces result cache keys in Redis.
const DefaultResultPrefix = "airbase:"

// ResultCache stores rows of read statements. Entries are tagged with the
// tables they read so a write to any of them can drop them.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]map[string]any, bool, error)
	Set(ctx context.Context, key string, tables []string, rows []map[string]any, ttl time.Duration) error
	Invalidate(ctx context.Context, tables ...string) error
}

// ResultKey hashes a statement and its parameters into a cache key.
// Parameters are msgpack encoded so 1 and "1" hash differently.
func ResultKey(query string, params []any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(query)
	buf.WriteByte(0)
	if err := msgpack.NewEncoder(&buf).Encode(params); err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16), nil
}

// RedisResultCache is a ResultCache on Redis. Rows are stored msgpack
// encoded; each table keeps a set of the keys that read it.
type RedisResultCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisResultCache.
type RedisOption func(*RedisResultCache)

// WithPrefix overrides DefaultResultPrefix.
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisResultCache) {
		c.prefix = prefix
	}
}

// NewRedisResultCache wraps an existing client. The caller owns the client.
func NewRedisResultCache(client redis.UniversalClient, opts ...RedisOption) *RedisResultCache {
	c := &RedisResultCache{client: client, prefix: DefaultResultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisResultCache) entryKey(key string) string {
	return c.prefix + "q:" + key
}

func (c *RedisResultCache) tableKey(table string) string {
	return c.prefix + "t:" + table
}

// Get returns cached rows. A miss is (nil, false, nil).
func (c *RedisResultCache) Get(ctx context.Context, key string) ([]map[string]any, bool, error) {
	data, err := c.client.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []map[string]any
	if err := msgpack.Unmarshal(data, &rows); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.client.Del(ctx, c.entryKey(key)).Err()
		return nil, false, nil
	}
	return rows, true, nil
}

// Set stores rows under key and tags the key with tables. A zero ttl keeps
// the entry until it is invalidated.
func (c *RedisResultCache) Set(ctx context.Context, key string, tables []string, rows []map[string]any, ttl time.Duration) error {
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return err
	}

	entry := c.entryKey(key)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, entry, data, ttl)
		for _, t := range tables {
			pipe.SAdd(ctx, c.tableKey(t), entry)
		}
		return nil
	})
	return err
}

// Invalidate drops every entry tagged with any of tables.
func (c *RedisResultCache) Invalidate(ctx context.Context, tables ...string) error {
	for _, t := range tables {
		tk := c.tableKey(t)
		keys, err := c.client.SMembers(ctx, tk).Result()
		if err != nil {
			return err
		}
		if err := c.client.Del(ctx, append(keys, tk)...).Err(); err != nil {
			return err
		}
	}
	return nil
}

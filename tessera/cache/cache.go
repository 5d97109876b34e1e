// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

// Package cache is an optional redis-backed read cache for contracts,
// assets, and schema diffs. Every failure is treated as a miss so a
// cache outage never affects correctness.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the default error class for the cache package.
var Error = errs.Class("cache")

const (
	contractTTL = 10 * time.Minute
	assetTTL    = 10 * time.Minute
	diffTTL     = time.Hour
)

// Cache wraps a redis client. A nil *Cache is valid and disabled.
type Cache struct {
	log    *zap.Logger
	client *redis.Client
}

// Open connects to redis. An empty URL yields a disabled cache.
func Open(log *zap.Logger, redisURL string) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Cache{log: log, client: redis.NewClient(opts)}, nil
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return Error.Wrap(c.client.Close())
}

func (c *Cache) get(ctx context.Context, key string, out interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Debug("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Debug("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// GetContract reads a cached contract.
func (c *Cache) GetContract(ctx context.Context, id uuid.UUID, out interface{}) bool {
	return c.get(ctx, "contract:"+id.String(), out)
}

// SetContract caches a contract.
func (c *Cache) SetContract(ctx context.Context, id uuid.UUID, contract interface{}) {
	c.set(ctx, "contract:"+id.String(), contract, contractTTL)
}

// InvalidateContract drops a cached contract.
func (c *Cache) InvalidateContract(ctx context.Context, id uuid.UUID) {
	c.invalidate(ctx, "contract:"+id.String())
}

// GetAsset reads a cached asset.
func (c *Cache) GetAsset(ctx context.Context, id uuid.UUID, out interface{}) bool {
	return c.get(ctx, "asset:"+id.String(), out)
}

// SetAsset caches an asset.
func (c *Cache) SetAsset(ctx context.Context, id uuid.UUID, asset interface{}) {
	c.set(ctx, "asset:"+id.String(), asset, assetTTL)
}

// InvalidateAsset drops a cached asset.
func (c *Cache) InvalidateAsset(ctx context.Context, id uuid.UUID) {
	c.invalidate(ctx, "asset:"+id.String())
}

// DiffKey derives the cache key for a schema pair.
func DiffKey(oldSchema, newSchema []byte) string {
	oldSum := sha256.Sum256(oldSchema)
	newSum := sha256.Sum256(newSchema)
	return "diff:" + hex.EncodeToString(oldSum[:]) + ":" + hex.EncodeToString(newSum[:])
}

// GetDiff reads a cached schema diff.
func (c *Cache) GetDiff(ctx context.Context, key string, out interface{}) bool {
	return c.get(ctx, key, out)
}

// SetDiff caches a schema diff.
func (c *Cache) SetDiff(ctx context.Context, key string, diff interface{}) {
	c.set(ctx, key, diff, diffTTL)
}

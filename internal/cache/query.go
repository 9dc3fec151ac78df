//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// DefaultQueryTTL is the query-cache entry lifetime.
const DefaultQueryTTL = 30 * time.Minute

// QueryCache is a best-effort Redis cache for expensive reporting queries.
// Every failure degrades to a cache miss; callers never see Redis errors.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueryCache connects a query cache to the Redis instance at addr
// (host:port). The connection is lazy; an unreachable Redis simply makes
// every lookup a miss.
func NewQueryCache(addr string, db int, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &QueryCache{client: client, ttl: ttl}
}

// Key derives a deterministic cache key from a query identifier and its
// parameters.
func Key(query string, params ...any) string {
	raw, _ := json.Marshal(params)
	sum := md5.Sum([]byte(query + ":" + string(raw)))
	return "query:" + hex.EncodeToString(sum[:])
}

// Get loads a cached value into dest. Returns false on miss or any error.
func (q *QueryCache) Get(ctx context.Context, key string, dest any) bool {
	if q == nil || q.client == nil {
		return false
	}

	raw, err := q.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logging.Debug().Err(err).Str("key", key).Msg("Query cache get failed")
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Query cache entry unreadable")
		return false
	}
	return true
}

// Set stores a value under key with the configured TTL. Failures are logged
// at debug and otherwise ignored.
func (q *QueryCache) Set(ctx context.Context, key string, value any) {
	if q == nil || q.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Query cache marshal failed")
		return
	}

	if err := q.client.Set(ctx, key, raw, q.ttl).Err(); err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("Query cache set failed")
	}
}

// Ping reports whether Redis is reachable.
func (q *QueryCache) Ping(ctx context.Context) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("query cache not configured")
	}
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (q *QueryCache) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

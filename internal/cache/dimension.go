//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cache provides the in-process dimension-key cache and the
// Redis-backed query-result cache.
package cache

import (
	"fmt"
	"sync"
)

// Namespace identifies one of the dimension-cache key spaces.
type Namespace string

const (
	// NamespaceCustomer keys are "customer_id|country".
	NamespaceCustomer Namespace = "customer"
	// NamespaceProduct keys are stock codes.
	NamespaceProduct Namespace = "product"
	// NamespaceDate keys are ISO dates (YYYY-MM-DD).
	NamespaceDate Namespace = "date"
)

// DefaultBound is the per-namespace entry limit.
const DefaultBound = 10000

// CustomerKey builds the customer namespace key.
func CustomerKey(customerID, country string) string {
	return fmt.Sprintf("%s|%s", customerID, country)
}

// nsStore holds one namespace. Insertion order is tracked so eviction can
// drop the oldest entries; updates do not refresh a key's age.
type nsStore struct {
	mu        sync.Mutex
	keys      map[string]int64
	order     []string
	bound     int
	hits      int64
	misses    int64
	evictions int64
}

// DimensionCache maps natural keys to surrogate keys per namespace. It is
// bounded: when a namespace exceeds its bound, the oldest 20% of entries
// (by insertion order) are evicted. Entries have no TTL since surrogate
// keys are stable for the life of the warehouse.
type DimensionCache struct {
	stores map[Namespace]*nsStore
}

// NewDimensionCache creates a cache with the given per-namespace bound.
// A bound of zero or less falls back to DefaultBound.
func NewDimensionCache(bound int) *DimensionCache {
	if bound <= 0 {
		bound = DefaultBound
	}
	stores := make(map[Namespace]*nsStore, 3)
	for _, ns := range []Namespace{NamespaceCustomer, NamespaceProduct, NamespaceDate} {
		stores[ns] = &nsStore{
			keys:  make(map[string]int64),
			bound: bound,
		}
	}
	return &DimensionCache{stores: stores}
}

// Get returns the surrogate key for a natural key, if cached.
func (c *DimensionCache) Get(ns Namespace, key string) (int64, bool) {
	s, ok := c.stores[ns]
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.keys[key]
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return v, ok
}

// Put stores a natural-key to surrogate-key mapping, evicting the oldest
// 20% of the namespace when the bound is exceeded.
func (c *DimensionCache) Put(ns Namespace, key string, surrogate int64) {
	s, ok := c.stores[ns]
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, surrogate)
}

// PutAll stores a batch of mappings under a single lock acquisition.
func (c *DimensionCache) PutAll(ns Namespace, entries map[string]int64) {
	s, ok := c.stores[ns]
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, surrogate := range entries {
		s.put(key, surrogate)
	}
}

// put requires s.mu held.
func (s *nsStore) put(key string, surrogate int64) {
	if _, exists := s.keys[key]; exists {
		s.keys[key] = surrogate
		return
	}

	s.keys[key] = surrogate
	s.order = append(s.order, key)

	if len(s.keys) <= s.bound {
		return
	}

	evict := s.bound / 5
	if evict < 1 {
		evict = 1
	}
	for i := 0; i < evict && len(s.order) > 0; i++ {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
		s.evictions++
	}
}

// Len returns the number of entries in a namespace.
func (c *DimensionCache) Len(ns Namespace) int {
	s, ok := c.stores[ns]
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Stats summarizes cache activity for one namespace.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns activity counters for a namespace.
func (c *DimensionCache) Stats(ns Namespace) Stats {
	s, ok := c.stores[ns]
	if !ok {
		return Stats{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Size:      len(s.keys),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

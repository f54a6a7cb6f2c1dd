// Package store — in-memory Store implementation.
// Used as a fallback when Redis is not configured (local dev, tests).
package store

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore implements Store with mutex-guarded maps. Commands take
// the lock for their whole body, matching the per-command atomicity the
// Redis implementation gets for free.
type MemoryStore struct {
	mu      sync.RWMutex
	scalars map[string]string
	hashes  map[string]map[string]int64
	lists   map[string][]string

	// failing simulates a store outage for tests.
	failing error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scalars: make(map[string]string),
		hashes:  make(map[string]map[string]int64),
		lists:   make(map[string][]string),
	}
}

// Fail makes every subsequent command return the given error, or
// restores normal operation when err is nil. Test hook.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return 0, unavailable("INCR", key, s.failing)
	}
	n, _ := strconv.ParseInt(s.scalars[key], 10, 64)
	n++
	s.scalars[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return 0, unavailable("HINCRBY", key, s.failing)
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]int64)
		s.hashes[key] = h
	}
	h[field] += n
	return h[field], nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, unavailable("HGETALL", key, s.failing)
	}
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = strconv.FormatInt(v, 10)
	}
	return out, nil
}

func (s *MemoryStore) LPush(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return unavailable("LPUSH", key, s.failing)
	}
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

func (s *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return unavailable("LTRIM", key, s.failing)
	}
	list := s.lists[key]
	start, stop = clampRange(start, stop, int64(len(list)))
	if start > stop {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = list[start : stop+1]
	return nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return nil, unavailable("LRANGE", key, s.failing)
	}
	list := s.lists[key]
	start, stop = clampRange(start, stop, int64(len(list)))
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return "", false, unavailable("GET", key, s.failing)
	}
	v, ok := s.scalars[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return unavailable("SET", key, s.failing)
	}
	s.scalars[key] = value
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return unavailable("DEL", "", s.failing)
	}
	for _, k := range keys {
		delete(s.scalars, k)
		delete(s.hashes, k)
		delete(s.lists, k)
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing != nil {
		return unavailable("PING", "", s.failing)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// clampRange resolves Redis-style negative indexes and clamps the range
// to [0, length).
func clampRange(start, stop, length int64) (int64, int64) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if stop >= length {
		stop = length - 1
	}
	return start, stop
}

// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package baseline

import (
	"container/list"
	"sync"

	"github.com/llm-sentinel/sentinel/pkg/stats"
)

// shardCount mirrors the fan-out the teacher's memorystore uses to
// keep lock contention low under concurrent per-key writers; the
// exact key a given (service, model, metric) triple hashes to does
// not matter, only that distinct keys are likely to land in distinct
// shards.
const shardCount = 64

type shard struct {
	mu       sync.Mutex
	windows  map[Key]*stats.RollingWindow
	current  map[Key]Baseline
	lru      *list.List
	lruNode  map[Key]*list.Element
}

// Store holds one RollingWindow and its derived Baseline per Key,
// sharded for concurrent access and bounded in cardinality by LRU
// eviction so an unbounded stream of distinct (service, model) pairs
// cannot grow memory without limit.
type Store struct {
	shards     [shardCount]*shard
	windowSize int
	maxKeys    int // per shard; 0 means unbounded
}

// NewStore creates a Store whose per-key RollingWindow holds windowSize
// samples. maxKeysPerShard bounds how many distinct Keys each shard
// will retain before evicting the least recently touched one; pass 0
// for no bound.
func NewStore(windowSize, maxKeysPerShard int) *Store {
	s := &Store{windowSize: windowSize, maxKeys: maxKeysPerShard}
	for i := range s.shards {
		s.shards[i] = &shard{
			windows: make(map[Key]*stats.RollingWindow),
			current: make(map[Key]Baseline),
			lru:     list.New(),
			lruNode: make(map[Key]*list.Element),
		}
	}
	return s
}

func (s *Store) shardIndex(k Key) int {
	h := fnv64(string(k.Service) + "\x00" + string(k.Model) + "\x00" + string(k.Metric))
	return int(h % shardCount)
}

func fnv64(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// Update pushes value into key's window and, once the window is full,
// recomputes its Baseline; before that the key has no Baseline and the
// zero Baseline is returned. It is the only operation that adds
// samples; callers (the pipeline, one event at a time per key in
// practice) do not need external synchronization.
func (s *Store) Update(key Key, value float64) Baseline {
	sh := s.shards[s.shardIndex(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok {
		w = stats.NewRollingWindow(s.windowSize)
		sh.windows[key] = w
		sh.touchLocked(key)
		s.evictIfNeededLocked(sh)
	} else {
		sh.touchLocked(key)
	}
	w.Push(value)

	if w.IsFull() {
		sh.current[key] = computeBaseline(key, w.Data())
	}
	b, _ := sh.current[key]
	return b
}

// Get returns the current Baseline for key and whether one exists.
func (s *Store) Get(key Key) (Baseline, bool) {
	sh := s.shards[s.shardIndex(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	b, ok := sh.current[key]
	return b, ok
}

// HasValid reports whether key has a Baseline with enough samples to
// be used as a detection reference.
func (s *Store) HasValid(key Key) bool {
	b, ok := s.Get(key)
	return ok && b.IsValid()
}

// Clear drops a single key's window and baseline.
func (s *Store) Clear(key Key) {
	sh := s.shards[s.shardIndex(key)]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, key)
	delete(sh.current, key)
	if el, ok := sh.lruNode[key]; ok {
		sh.lru.Remove(el)
		delete(sh.lruNode, key)
	}
}

// ClearAll drops every tracked key across all shards.
func (s *Store) ClearAll() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.windows = make(map[Key]*stats.RollingWindow)
		sh.current = make(map[Key]Baseline)
		sh.lru = list.New()
		sh.lruNode = make(map[Key]*list.Element)
		sh.mu.Unlock()
	}
}

// Snapshot returns every currently tracked Baseline across all shards,
// for periodic export (e.g. the sentinel_baseline_mean gauge).
func (s *Store) Snapshot() []Baseline {
	var out []Baseline
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, b := range sh.current {
			out = append(out, b)
		}
		sh.mu.Unlock()
	}
	return out
}

// Len returns the total number of tracked keys across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// touchLocked marks key as most-recently-used. Caller holds sh.mu.
func (sh *shard) touchLocked(key Key) {
	if el, ok := sh.lruNode[key]; ok {
		sh.lru.MoveToFront(el)
		return
	}
	sh.lruNode[key] = sh.lru.PushFront(key)
}

// evictIfNeededLocked drops the least recently touched key once the
// shard holds more than maxKeys entries. Caller holds sh.mu.
func (s *Store) evictIfNeededLocked(sh *shard) {
	if s.maxKeys <= 0 {
		return
	}
	for len(sh.windows) > s.maxKeys {
		back := sh.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(Key)
		sh.lru.Remove(back)
		delete(sh.lruNode, key)
		delete(sh.windows, key)
		delete(sh.current, key)
	}
}

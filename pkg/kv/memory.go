// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	stored time.Time
	ttl    time.Duration
	value  []byte
}

func (e memEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.stored) > e.ttl
}

// MemoryBackend keeps values in process memory. Expiry is lazy: an entry
// older than its TTL is evicted by the read that finds it. Values are not
// shared with other processes.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for TTL checks.
func (m *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// lookup returns the live entry for key, evicting it if expired.
// The caller holds m.mu.
func (m *MemoryBackend) lookup(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryBackend) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{stored: m.now(), ttl: ttl, value: v}
	return true
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return v, true
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.lookup(k); ok {
			delete(m.entries, k)
			n++
		}
	}
	return n, true
}

func (m *MemoryBackend) Exists(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok
}

func (m *MemoryBackend) Ping(context.Context) bool { return true }

func (m *MemoryBackend) Durable() bool { return false }

func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

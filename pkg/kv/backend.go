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

// Package kv abstracts the key-value store that holds document payloads.
//
// Two implementations exist: RedisBackend, durable and shared between
// processes, and MemoryBackend, an in-process map used when no remote
// store is reachable. Open picks one of them once at start-up.
//
// Backends never return errors to callers. Failures are logged and
// reported through boolean results.
package kv

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/fawa-io/docsearch/pkg/fwlog"
)

// ErrUnsupportedScheme is returned by Dial for addresses that are not
// redis:// or rediss:// URLs.
var ErrUnsupportedScheme = errors.New("kv: unsupported backend scheme")

// DialTimeout bounds the start-up ping of the remote backend.
const DialTimeout = 5 * time.Second

// Backend is the storage contract used by the document store.
type Backend interface {
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool

	// Get returns the value under key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, bool)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) bool

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) bool

	// Durable reports whether values survive the process.
	Durable() bool

	Close() error
}

// Open returns a RedisBackend for addr, or fallback when addr is empty,
// malformed or unreachable. The choice is final for the lifetime of the
// process; there is no reconnect loop.
func Open(ctx context.Context, addr string, fallback *MemoryBackend) Backend {
	if addr == "" {
		fwlog.Info("No remote backend address configured; using in-process fallback store.")
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	rb, err := Dial(ctx, addr)
	if err != nil {
		fwlog.Warnf("Remote backend %s unavailable, using in-process fallback store: %v", redact(addr), err)
		return fallback
	}
	fwlog.Infof("Connected to remote backend at %s", redact(addr))
	return rb
}

func redact(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return "<invalid address>"
	}
	return u.Redacted()
}

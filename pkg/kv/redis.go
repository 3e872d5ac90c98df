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
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/docsearch/pkg/fwlog"
)

// RedisBackend implements Backend using Redis or a wire-compatible server
// such as Dragonfly.
type RedisBackend struct {
	client redis.Cmdable
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client redis.Cmdable) *RedisBackend {
	return &RedisBackend{client: client}
}

// Dial parses a redis:// or rediss:// URL, connects and checks the
// connection with a ping.
func Dial(ctx context.Context, rawURL string) (*RedisBackend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse address: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Check the connection.
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (r *RedisBackend) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := r.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		fwlog.Errorf("Redis SETEX failed for key %s: %v", key, err)
		return false
	}
	return true
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			fwlog.Errorf("Redis GET failed for key %s: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) (int64, bool) {
	if len(keys) == 0 {
		return 0, true
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		fwlog.Errorf("Redis DEL failed for keys %v: %v", keys, err)
		return 0, false
	}
	return n, true
}

func (r *RedisBackend) Exists(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		fwlog.Errorf("Redis EXISTS failed for key %s: %v", key, err)
		return false
	}
	return n > 0
}

func (r *RedisBackend) Ping(ctx context.Context) bool {
	if err := r.client.Ping(ctx).Err(); err != nil {
		fwlog.Errorf("Redis ping failed: %v", err)
		return false
	}
	return true
}

// Durable is always true for Redis.
func (r *RedisBackend) Durable() bool { return true }

// Close closes the underlying connection pool when the client owns one.
func (r *RedisBackend) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		fwlog.Info("Closing Redis connection...")
		return c.Close()
	}
	return nil
}

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

package docstore

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/docsearch/pkg/chunk"
	"github.com/fawa-io/docsearch/pkg/codec"
	"github.com/fawa-io/docsearch/pkg/kv"
)

// remote behaves like a durable backend but keeps data in memory and can
// be told to fail writes.
type remote struct {
	*kv.MemoryBackend
	failSet    func(key string) bool
	failDelete bool
}

func newRemote() *remote {
	return &remote{MemoryBackend: kv.NewMemoryBackend()}
}

func (r *remote) Durable() bool { return true }

func (r *remote) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if r.failSet != nil && r.failSet(key) {
		return false
	}
	return r.MemoryBackend.SetWithTTL(ctx, key, value, ttl)
}

func (r *remote) Delete(ctx context.Context, keys ...string) (int64, bool) {
	if r.failDelete {
		return 0, false
	}
	return r.MemoryBackend.Delete(ctx, keys...)
}

func newTestStore(opts Options) (*Store, *remote, *kv.MemoryBackend) {
	r := newRemote()
	fb := kv.NewMemoryBackend()
	return New(r, fb, opts), r, fb
}

func smallOptions() Options {
	return Options{
		TTL:               time.Hour,
		CompressThreshold: 512,
		ChunkSize:         1000,
		MaxSingleKeyBytes: 2000,
	}
}

// noisyText returns n bytes of text that gzip cannot shrink much.
func noisyText(n int, seed int64) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 \n"
	rng := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func TestStore_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "short", text: "hello world"},
		{name: "utf8", text: "naïve café — 東京 📄"},
		{name: "starts with marker", text: "gzip: not actually compressed"},
		{name: "compressed single", text: strings.Repeat("lorem ipsum ", 200)},
		{name: "noisy multibyte", text: noisyText(1500, 1) + "ü"},
		{name: "compressed chunked", text: noisyText(20_000, 2)},
		{name: "repeated beyond chunk size", text: strings.Repeat("x", 50_000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, _, _ := newTestStore(smallOptions())
			ctx := context.Background()

			require.True(t, store.Put(ctx, "doc-1", tc.text))
			assert.Equal(t, tc.text, store.Get(ctx, "doc-1"))
		})
	}
}

func TestStore_CompressionThreshold(t *testing.T) {
	opts := smallOptions()
	opts.CompressThreshold = 100
	store, r, _ := newTestStore(opts)
	ctx := context.Background()

	below := strings.Repeat("a", 99)
	require.True(t, store.Put(ctx, "below", below))
	raw, ok := r.Get(ctx, DocKey("below"))
	require.True(t, ok)
	assert.Equal(t, below, string(raw), "payload below threshold is stored raw")

	// Random text gains nothing from gzip; the marker is still used.
	at := noisyText(100, 3)
	require.True(t, store.Put(ctx, "at", at))
	raw, ok = r.Get(ctx, DocKey("at"))
	require.True(t, ok)
	assert.True(t, codec.HasMarker(raw), "payload at threshold is stored compressed")
	assert.Equal(t, at, store.Get(ctx, "at"))
}

func TestStore_ChunkBoundary(t *testing.T) {
	opts := Options{TTL: time.Hour, CompressThreshold: 0, ChunkSize: 20, MaxSingleKeyBytes: 50}
	store, r, _ := newTestStore(opts)
	ctx := context.Background()

	single := noisyText(50, 4)
	require.True(t, store.Put(ctx, "single", single))
	assert.True(t, r.Exists(ctx, DocKey("single")))
	assert.False(t, r.Exists(ctx, MetaKey("single")))

	chunked := noisyText(51, 5)
	require.True(t, store.Put(ctx, "chunked", chunked))
	assert.False(t, r.Exists(ctx, DocKey("chunked")))

	rawMeta, ok := r.Get(ctx, MetaKey("chunked"))
	require.True(t, ok)
	m, err := chunk.DecodeMeta(rawMeta)
	require.NoError(t, err)
	assert.Equal(t, chunk.Meta{Chunks: 3, OrigBytes: 51, StoredBytes: 51}, m)

	for i, want := range []int{20, 20, 11} {
		piece, ok := r.Get(ctx, ChunkKey("chunked", i))
		require.True(t, ok)
		assert.Len(t, piece, want)
	}
	assert.Equal(t, chunked, store.Get(ctx, "chunked"))
}

func TestStore_FormExclusivity(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	ctx := context.Background()

	big := noisyText(20_000, 6)
	require.True(t, store.Put(ctx, "doc", big))
	require.True(t, r.Exists(ctx, MetaKey("doc")))

	require.True(t, store.Put(ctx, "doc", "small now"))
	assert.Equal(t, "small now", store.Get(ctx, "doc"))
	assert.False(t, r.Exists(ctx, MetaKey("doc")))
	for i := 0; i < 20; i++ {
		assert.False(t, r.Exists(ctx, ChunkKey("doc", i)), "chunk %d survived", i)
	}

	// And back again: the single key goes away.
	require.True(t, store.Put(ctx, "doc", big))
	assert.False(t, r.Exists(ctx, DocKey("doc")))
	assert.Equal(t, big, store.Get(ctx, "doc"))
}

func TestStore_ShrinkingChunkedWriteDropsTrailingChunks(t *testing.T) {
	opts := Options{TTL: time.Hour, ChunkSize: 10, MaxSingleKeyBytes: 10}
	store, r, _ := newTestStore(opts)
	ctx := context.Background()

	require.True(t, store.Put(ctx, "doc", noisyText(50, 7)))
	require.True(t, r.Exists(ctx, ChunkKey("doc", 4)))

	require.True(t, store.Put(ctx, "doc", "0123456789abcdefghij!"))
	assert.True(t, r.Exists(ctx, ChunkKey("doc", 2)))
	assert.False(t, r.Exists(ctx, ChunkKey("doc", 3)))
	assert.False(t, r.Exists(ctx, ChunkKey("doc", 4)))
	assert.Equal(t, "0123456789abcdefghij!", store.Get(ctx, "doc"))
}

func TestStore_MissingChunk(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	ctx := context.Background()

	text := noisyText(20_000, 8)
	require.True(t, store.Put(ctx, "doc", text))

	n, _ := r.MemoryBackend.Delete(ctx, ChunkKey("doc", 1))
	require.Equal(t, int64(1), n)

	assert.Equal(t, "", store.Get(ctx, "doc"))
}

func TestStore_ClearIdempotent(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	require.True(t, store.Put(ctx, "chunked", noisyText(20_000, 9)))
	require.True(t, store.Put(ctx, "single", "hello"))

	for _, id := range []string{"chunked", "single"} {
		assert.True(t, store.Clear(ctx, id))
		assert.Equal(t, "", store.Get(ctx, id))
		assert.True(t, store.Clear(ctx, id))
		assert.Equal(t, "", store.Get(ctx, id))
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, fb.Len())
}

func TestStore_ClearWithCorruptMeta(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	ctx := context.Background()

	r.MemoryBackend.SetWithTTL(ctx, MetaKey("doc"), []byte("{not json"), time.Hour)
	for i := 0; i < 3; i++ {
		r.MemoryBackend.SetWithTTL(ctx, ChunkKey("doc", i), []byte("piece"), time.Hour)
	}

	assert.True(t, store.Clear(ctx, "doc"))
	assert.Equal(t, 0, r.Len())
}

func TestStore_ClearOrphanChunks(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r.MemoryBackend.SetWithTTL(ctx, ChunkKey("doc", i), []byte("piece"), time.Hour)
	}
	assert.True(t, store.Clear(ctx, "doc"))
	assert.Equal(t, 0, r.Len())
}

func TestStore_ClearReportsDeleteFailure(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	require.True(t, store.Put(ctx, "doc", "hello"))
	fb.SetWithTTL(ctx, DocKey("doc"), []byte("stale"), time.Hour)

	r.failDelete = true
	assert.False(t, store.Clear(ctx, "doc"))
	assert.False(t, fb.Exists(ctx, DocKey("doc")), "fallback entry is removed regardless")
}

func TestStore_FallbackMode(t *testing.T) {
	fb := kv.NewMemoryBackend()
	store := New(kv.Open(context.Background(), "", fb), fb, smallOptions())
	ctx := context.Background()

	big := strings.Repeat("y", 10_000)
	require.True(t, store.Put(ctx, "doc", big))
	raw, ok := fb.Get(ctx, DocKey("doc"))
	require.True(t, ok)
	assert.Equal(t, big, string(raw), "fallback stores raw text, no compression or chunking")
	assert.Equal(t, 1, fb.Len())

	assert.Equal(t, big, store.Get(ctx, "doc"))
	assert.False(t, store.Health(ctx))
	assert.Empty(t, store.BuildMetadata(ctx, "doc", 10))

	assert.True(t, store.Clear(ctx, "doc"))
	assert.Equal(t, "", store.Get(ctx, "doc"))
}

func TestStore_FallbackExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fb := kv.NewMemoryBackend().WithClock(func() time.Time { return now })
	store := New(fb, fb, Options{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, store.Put(ctx, "doc", "short lived"))
	now = now.Add(time.Minute)
	assert.Equal(t, "short lived", store.Get(ctx, "doc"))
	now = now.Add(time.Second)
	assert.Equal(t, "", store.Get(ctx, "doc"))
	assert.Equal(t, 0, fb.Len())
}

func TestStore_ChunkWriteFailureFallsBack(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	old := noisyText(20_000, 10)
	require.True(t, store.Put(ctx, "doc", old))

	r.failSet = func(key string) bool { return key == ChunkKey("doc", 2) }
	text := noisyText(20_000, 11)
	assert.True(t, store.Put(ctx, "doc", text))

	assert.False(t, r.Exists(ctx, MetaKey("doc")), "no meta may point at a half-written chunk set")
	assert.False(t, r.Exists(ctx, ChunkKey("doc", 0)))
	assert.True(t, fb.Exists(ctx, DocKey("doc")))
	assert.Equal(t, text, store.Get(ctx, "doc"))

	// A later successful write supersedes the fallback copy.
	r.failSet = nil
	require.True(t, store.Put(ctx, "doc", "fresh"))
	assert.False(t, fb.Exists(ctx, DocKey("doc")))
	assert.Equal(t, "fresh", store.Get(ctx, "doc"))
}

func TestStore_MetaWriteFailureFallsBack(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	r.failSet = func(key string) bool { return key == MetaKey("doc") }
	text := noisyText(20_000, 12)
	assert.True(t, store.Put(ctx, "doc", text))
	assert.True(t, fb.Exists(ctx, DocKey("doc")))
	assert.Equal(t, text, store.Get(ctx, "doc"))
}

func TestStore_SingleKeyFailureTriesChunks(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	r.failSet = func(key string) bool { return key == DocKey("doc") }
	require.True(t, store.Put(ctx, "doc", "hello"))

	assert.True(t, r.Exists(ctx, MetaKey("doc")))
	assert.False(t, fb.Exists(ctx, DocKey("doc")))
	assert.Equal(t, "hello", store.Get(ctx, "doc"))

	// An empty document lands as one empty chunk with a readable meta record.
	r.failSet = func(key string) bool { return key == DocKey("empty") }
	require.True(t, store.Put(ctx, "empty", ""))
	raw, ok := r.Get(ctx, MetaKey("empty"))
	require.True(t, ok)
	m, err := chunk.DecodeMeta(raw)
	require.NoError(t, err)
	assert.Equal(t, chunk.Meta{Chunks: 1}, m)
	assert.True(t, store.Clear(ctx, "empty"))
	assert.False(t, r.Exists(ctx, ChunkKey("empty", 0)))
}

func TestStore_CompressionFailureStoresRaw(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	store.compress = func([]byte) ([]byte, error) { return nil, errors.New("codec exploded") }
	ctx := context.Background()

	text := strings.Repeat("z", 1500)
	require.True(t, store.Put(ctx, "doc", text))
	raw, ok := r.Get(ctx, DocKey("doc"))
	require.True(t, ok)
	assert.Equal(t, text, string(raw))
	assert.Equal(t, text, store.Get(ctx, "doc"))
}

func TestStore_EmptyID(t *testing.T) {
	store, r, fb := newTestStore(smallOptions())
	ctx := context.Background()

	assert.False(t, store.Put(ctx, "", "text"))
	assert.Equal(t, "", store.Get(ctx, ""))
	assert.False(t, store.Clear(ctx, ""))
	assert.Nil(t, store.BuildMetadata(ctx, "", 10))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, fb.Len())
}

func TestStore_CorruptValuesReadAsAbsent(t *testing.T) {
	store, r, _ := newTestStore(smallOptions())
	ctx := context.Background()

	r.MemoryBackend.SetWithTTL(ctx, DocKey("bad-utf8"), []byte{0xff, 0xfe, 'a'}, time.Hour)
	assert.Equal(t, "", store.Get(ctx, "bad-utf8"))

	r.MemoryBackend.SetWithTTL(ctx, MetaKey("bad-meta"), []byte("[]"), time.Hour)
	assert.Equal(t, "", store.Get(ctx, "bad-meta"))

	meta, _ := chunk.EncodeMeta(chunk.Meta{Chunks: 1, OrigBytes: 8, StoredBytes: 8, Compressed: true})
	r.MemoryBackend.SetWithTTL(ctx, MetaKey("bad-gzip"), meta, time.Hour)
	r.MemoryBackend.SetWithTTL(ctx, ChunkKey("bad-gzip", 0), []byte("not gzip"), time.Hour)
	assert.Equal(t, "", store.Get(ctx, "bad-gzip"))

	corruptMetas := map[string]string{
		"huge-stored":   `{"chunks":1,"orig_bytes":5,"stored_bytes":9223372036854775807,"compressed":false}`,
		"huge-chunks":   `{"chunks":9223372036854775807,"orig_bytes":5,"stored_bytes":9223372036854775807,"compressed":false}`,
		"large-chunks":  `{"chunks":1099511627776,"orig_bytes":5,"stored_bytes":1099511627776,"compressed":false}`,
		"negative-size": `{"chunks":1,"orig_bytes":-1,"stored_bytes":5,"compressed":false}`,
	}
	for id, raw := range corruptMetas {
		r.MemoryBackend.SetWithTTL(ctx, MetaKey(id), []byte(raw), time.Hour)
		r.MemoryBackend.SetWithTTL(ctx, ChunkKey(id, 0), []byte("hello"), time.Hour)
		assert.NotPanics(t, func() {
			assert.Equal(t, "", store.Get(ctx, id), id)
		})
		assert.True(t, store.Clear(ctx, id), id)
		assert.False(t, r.Exists(ctx, ChunkKey(id, 0)), id)
	}
}

func TestStore_Health(t *testing.T) {
	store, _, _ := newTestStore(smallOptions())
	assert.True(t, store.Health(context.Background()))
}

func TestStore_ScenarioDefaults(t *testing.T) {
	store, r, _ := newTestStore(DefaultOptions())
	ctx := context.Background()

	require.True(t, store.Put(ctx, "d1", "hello world"))
	raw, ok := r.Get(ctx, DocKey("d1"))
	require.True(t, ok)
	assert.Equal(t, "hello world", string(raw))
	assert.False(t, r.Exists(ctx, MetaKey("d1")))
	assert.Equal(t, "hello world", store.Get(ctx, "d1"))
}

func TestStore_ScenarioLargeRepetitive(t *testing.T) {
	text := strings.Repeat("x", 5_000_000)
	ctx := context.Background()

	t.Run("compressed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ChunkSize = 1_000_000
		opts.MaxSingleKeyBytes = 2_000_000
		store, r, _ := newTestStore(opts)

		require.True(t, store.Put(ctx, "d2", text))

		gz, err := codec.Compress([]byte(text))
		require.NoError(t, err)
		layout := chunk.Plan(len(gz), opts.MaxSingleKeyBytes, opts.ChunkSize)
		if layout.Chunked {
			rawMeta, ok := r.Get(ctx, MetaKey("d2"))
			require.True(t, ok)
			m, err := chunk.DecodeMeta(rawMeta)
			require.NoError(t, err)
			assert.Equal(t, layout.Count, m.Chunks)
			assert.True(t, m.Compressed)
		} else {
			raw, ok := r.Get(ctx, DocKey("d2"))
			require.True(t, ok)
			assert.True(t, codec.HasMarker(raw))
		}
		assert.Equal(t, text, store.Get(ctx, "d2"))
	})

	t.Run("uncompressed", func(t *testing.T) {
		opts := Options{TTL: time.Hour, ChunkSize: 1_000_000, MaxSingleKeyBytes: 2_000_000}
		store, r, _ := newTestStore(opts)

		require.True(t, store.Put(ctx, "d2", text))
		rawMeta, ok := r.Get(ctx, MetaKey("d2"))
		require.True(t, ok)
		m, err := chunk.DecodeMeta(rawMeta)
		require.NoError(t, err)
		assert.Equal(t, chunk.Meta{Chunks: 5, OrigBytes: 5_000_000, StoredBytes: 5_000_000}, m)
		assert.Equal(t, text, store.Get(ctx, "d2"))
	})
}

func TestOptions_Normalize(t *testing.T) {
	store := New(nil, nil, Options{CompressThreshold: -1})
	got := store.Options()
	assert.Equal(t, DefaultTTL, got.TTL)
	assert.Equal(t, DefaultChunkSize, got.ChunkSize)
	assert.Equal(t, DefaultMaxSingleKeyBytes, got.MaxSingleKeyBytes)
	assert.Equal(t, -1, got.CompressThreshold)
}

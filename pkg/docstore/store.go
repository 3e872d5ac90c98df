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

// Package docstore persists extracted document text in a key-value backend.
//
// A document is stored in one of two forms. Payloads up to
// Options.MaxSingleKeyBytes live under a single key, prefixed with
// "gzip:" when compressed. Larger payloads are cut into chunks written
// under doc:{id}:chunk:{i} and described by a JSON meta record under
// doc:{id}:meta, which is always written after the chunks.
//
// The Store never returns errors. Backend and codec failures are logged;
// reads report them as absent text and writes fall back to the in-process
// store so that text a Put reported as stored is never lost.
//
// Calls for the same document id must be serialized by the caller. Racing
// Put, Get and Clear on one id may observe partially written state.
package docstore

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/fawa-io/docsearch/pkg/chunk"
	"github.com/fawa-io/docsearch/pkg/codec"
	"github.com/fawa-io/docsearch/pkg/fwlog"
	"github.com/fawa-io/docsearch/pkg/kv"
	"github.com/fawa-io/docsearch/pkg/metrics"
)

// Defaults for Options fields left at zero.
const (
	DefaultTTL               = 24 * time.Hour
	DefaultCompressThreshold = 32 * 1024
	DefaultChunkSize         = 4 * 1024 * 1024
	DefaultMaxSingleKeyBytes = 100 * 1024 * 1024
)

// Options tunes how documents are written. Readers do not depend on them:
// any document written under any past Options can be read back.
type Options struct {
	// TTL is applied to every key written.
	TTL time.Duration
	// CompressThreshold is the payload size from which text is gzipped.
	// Zero or negative disables compression.
	CompressThreshold int
	// ChunkSize bounds each chunk of a chunked document.
	ChunkSize int
	// MaxSingleKeyBytes is the largest stored payload kept under one key.
	MaxSingleKeyBytes int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TTL:               DefaultTTL,
		CompressThreshold: DefaultCompressThreshold,
		ChunkSize:         DefaultChunkSize,
		MaxSingleKeyBytes: DefaultMaxSingleKeyBytes,
	}
}

func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxSingleKeyBytes <= 0 {
		o.MaxSingleKeyBytes = DefaultMaxSingleKeyBytes
	}
	return o
}

// Store is the document text store.
type Store struct {
	backend  kv.Backend
	fallback *kv.MemoryBackend
	opts     Options

	compress func([]byte) ([]byte, error)
}

// New returns a Store writing to backend. fallback receives documents
// whenever backend is not durable or a remote write fails; it is usually
// the same instance kv.Open fell back to.
func New(backend kv.Backend, fallback *kv.MemoryBackend, opts Options) *Store {
	if fallback == nil {
		fallback = kv.NewMemoryBackend()
	}
	if backend == nil {
		backend = fallback
	}
	return &Store{
		backend:  backend,
		fallback: fallback,
		opts:     opts.normalize(),
		compress: codec.Compress,
	}
}

// Options returns the effective write options.
func (s *Store) Options() Options {
	return s.opts
}

// Put stores text under id and reports success. It fails only for an
// empty id.
func (s *Store) Put(ctx context.Context, id, text string) bool {
	if id == "" {
		fwlog.Error("Put called with empty document id")
		return false
	}
	raw := []byte(text)

	if !s.backend.Durable() {
		s.fallback.SetWithTTL(ctx, DocKey(id), raw, s.opts.TTL)
		metrics.StorePuts.WithLabelValues(metrics.FormFallback).Inc()
		fwlog.Warnf("Remote backend not configured; stored doc %s in memory uncompressed.", id)
		return true
	}

	payload, compressed := s.encode(id, raw)
	layout := chunk.Plan(len(payload), s.opts.MaxSingleKeyBytes, s.opts.ChunkSize)

	// A failed single-key write is retried in chunked form before the
	// fallback is used.
	if !layout.Chunked {
		if s.putSingle(ctx, id, payload, compressed, len(raw)) {
			return true
		}
		fwlog.Errorf("Failed to store doc %s as a single key; trying chunked form.", id)
	}

	if s.putChunked(ctx, id, payload, compressed, len(raw)) {
		return true
	}

	// Leave no remote form behind that could shadow the fallback copy.
	s.backend.Delete(ctx, DocKey(id))
	s.dropChunked(ctx, id)
	s.fallback.SetWithTTL(ctx, DocKey(id), raw, s.opts.TTL)
	metrics.StorePuts.WithLabelValues(metrics.FormFallback).Inc()
	fwlog.Warnf("Fell back to in-memory store for doc %s.", id)
	return true
}

// encode compresses raw when it crosses the threshold. Compression
// failures fall back to the raw bytes.
func (s *Store) encode(id string, raw []byte) ([]byte, bool) {
	if !codec.ShouldCompress(len(raw), s.opts.CompressThreshold) {
		return raw, false
	}
	gz, err := s.compress(raw)
	if err != nil {
		metrics.CompressionFailures.Inc()
		fwlog.Errorf("Compression failed for doc %s, storing raw bytes: %v", id, err)
		return raw, false
	}
	return gz, true
}

func (s *Store) putSingle(ctx context.Context, id string, payload []byte, compressed bool, origSize int) bool {
	value := payload
	if compressed {
		value = codec.WithMarker(payload)
	}
	if !s.backend.SetWithTTL(ctx, DocKey(id), value, s.opts.TTL) {
		return false
	}

	s.dropChunked(ctx, id)
	s.fallback.Delete(ctx, DocKey(id))

	metrics.StorePuts.WithLabelValues(metrics.FormSingle).Inc()
	metrics.StoreBytes.Observe(float64(len(value)))
	fwlog.Debugf("Stored doc %s as single key (orig %d, stored %d).", id, origSize, len(value))
	return true
}

func (s *Store) putChunked(ctx context.Context, id string, payload []byte, compressed bool, origSize int) bool {
	pieces := chunk.Split(payload, s.opts.ChunkSize)
	for i, piece := range pieces {
		if !s.backend.SetWithTTL(ctx, ChunkKey(id, i), piece, s.opts.TTL) {
			fwlog.Errorf("Failed to write chunk %d of %d for doc %s; aborting chunked write.", i, len(pieces), id)
			return false
		}
	}

	meta, err := chunk.EncodeMeta(chunk.Meta{
		Chunks:      len(pieces),
		OrigBytes:   origSize,
		StoredBytes: len(payload),
		Compressed:  compressed,
	})
	if err != nil {
		fwlog.Errorf("Failed to encode meta for doc %s: %v", id, err)
		return false
	}
	if !s.backend.SetWithTTL(ctx, MetaKey(id), meta, s.opts.TTL) {
		fwlog.Errorf("Failed to write meta for doc %s.", id)
		return false
	}

	s.backend.Delete(ctx, DocKey(id))
	s.dropChunksFrom(ctx, id, len(pieces))
	s.fallback.Delete(ctx, DocKey(id))

	metrics.StorePuts.WithLabelValues(metrics.FormChunked).Inc()
	metrics.StoreBytes.Observe(float64(len(payload)))
	fwlog.Debugf("Stored doc %s as %d chunks (orig %d, stored %d).", id, len(pieces), origSize, len(payload))
	return true
}

// dropChunked removes the meta record and every chunk of id. Chunks are
// located through the meta record, or by scanning from index 0 when the
// record is absent or unreadable. It reports whether every delete
// succeeded.
func (s *Store) dropChunked(ctx context.Context, id string) bool {
	raw, found := s.backend.Get(ctx, MetaKey(id))
	if found {
		m, err := chunk.DecodeMeta(raw)
		if err == nil {
			keys := append([]string{MetaKey(id)}, chunkKeys(id, m.Chunks)...)
			_, ok := s.backend.Delete(ctx, keys...)
			return ok && s.dropChunksFrom(ctx, id, m.Chunks)
		}
		fwlog.Warnf("Unreadable meta for doc %s, scanning chunk keys: %v", id, err)
		if _, ok := s.backend.Delete(ctx, MetaKey(id)); !ok {
			s.dropChunksFrom(ctx, id, 0)
			return false
		}
	}
	return s.dropChunksFrom(ctx, id, 0)
}

// dropChunksFrom deletes chunk keys from index start upwards until a key
// turns out not to exist.
func (s *Store) dropChunksFrom(ctx context.Context, id string, start int) bool {
	for i := start; ; i++ {
		n, ok := s.backend.Delete(ctx, ChunkKey(id, i))
		if !ok {
			return false
		}
		if n == 0 {
			return true
		}
	}
}

// Get returns the text stored under id. An empty result means the
// document was never written, has expired, was cleared, or could not be
// read; these cases are not distinguished.
func (s *Store) Get(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}

	if s.backend.Durable() {
		if raw, ok := s.backend.Get(ctx, DocKey(id)); ok {
			if text, ok := decodeSingle(id, raw); ok {
				metrics.StoreGets.WithLabelValues(metrics.GetSingle).Inc()
				return text
			}
		}
		if text, ok := s.getChunked(ctx, id); ok {
			metrics.StoreGets.WithLabelValues(metrics.GetChunked).Inc()
			return text
		}
	}

	if raw, ok := s.fallback.Get(ctx, DocKey(id)); ok {
		metrics.StoreGets.WithLabelValues(metrics.GetFallback).Inc()
		return string(raw)
	}
	metrics.StoreGets.WithLabelValues(metrics.GetMiss).Inc()
	return ""
}

// decodeSingle turns a single-key value back into text. A value carrying
// the marker that fails to inflate is read as plain text, which is what
// an uncompressed text starting with "gzip:" looks like.
func decodeSingle(id string, raw []byte) (string, bool) {
	if codec.HasMarker(raw) {
		out, err := codec.Decompress(codec.StripMarker(raw))
		if err == nil {
			if utf8.Valid(out) {
				return string(out), true
			}
			fwlog.Errorf("Decompressed payload for doc %s is not valid UTF-8.", id)
			return "", false
		}
		fwlog.Debugf("Marker present but payload for doc %s does not inflate, reading raw: %v", id, err)
	}
	if !utf8.Valid(raw) {
		fwlog.Errorf("Stored bytes for doc %s are not valid UTF-8.", id)
		return "", false
	}
	return string(raw), true
}

func (s *Store) getChunked(ctx context.Context, id string) (string, bool) {
	raw, ok := s.backend.Get(ctx, MetaKey(id))
	if !ok {
		return "", false
	}
	m, err := chunk.DecodeMeta(raw)
	if err != nil {
		fwlog.Errorf("Error decoding meta for doc %s: %v", id, err)
		return "", false
	}

	payload, err := chunk.Reassemble(m, func(i int) ([]byte, bool) {
		return s.backend.Get(ctx, ChunkKey(id, i))
	})
	if err != nil {
		fwlog.Errorf("Error reassembling doc %s: %v", id, err)
		return "", false
	}
	if len(payload) != m.StoredBytes {
		fwlog.Errorf("Chunked doc %s has %d bytes, meta says %d.", id, len(payload), m.StoredBytes)
		return "", false
	}

	if m.Compressed {
		payload, err = codec.Decompress(payload)
		if err != nil {
			fwlog.Errorf("Error decompressing chunked doc %s: %v", id, err)
			return "", false
		}
	}
	if !utf8.Valid(payload) {
		fwlog.Errorf("Chunked doc %s is not valid UTF-8.", id)
		return "", false
	}
	return string(payload), true
}

// Clear removes every stored form of id, including the fallback copy. It
// returns false when id is empty or some cleanup step failed; the
// document may then survive until its TTL expires.
func (s *Store) Clear(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	ok := true
	if s.backend.Durable() {
		if _, delOK := s.backend.Delete(ctx, DocKey(id)); !delOK {
			ok = false
		}
		if !s.dropChunked(ctx, id) {
			ok = false
		}
	}
	s.fallback.Delete(ctx, DocKey(id))

	if !ok {
		metrics.ClearErrors.Inc()
		fwlog.Errorf("Some keys of doc %s could not be deleted.", id)
	}
	return ok
}

// Health reports whether a durable backend is in use and answers a ping.
// It is false, not an error, in fallback-only mode.
func (s *Store) Health(ctx context.Context) bool {
	if !s.backend.Durable() {
		fwlog.Debug("Health: remote backend not configured.")
		return false
	}
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

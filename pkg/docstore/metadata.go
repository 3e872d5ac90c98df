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
	"strings"

	"github.com/fawa-io/docsearch/pkg/chunk"
	"github.com/fawa-io/docsearch/pkg/codec"
	"github.com/fawa-io/docsearch/pkg/fwlog"
)

// DefaultPreviewChars is the preview length used by callers that do not
// pick one.
const DefaultPreviewChars = 256

// ChunkDescriptor describes one physical piece of a stored document for
// the relational metadata store.
type ChunkDescriptor struct {
	Index       int     `json:"chunk_index"`
	Key         string  `json:"redis_key"`
	StoredBytes int     `json:"stored_bytes"`
	Preview     *string `json:"text_preview,omitempty"`
	TokenCount  *int    `json:"token_count,omitempty"`
}

// BuildMetadata lists the physical layout of id without modifying it:
// one descriptor for a single-key document, one per chunk otherwise.
// Previews are best effort. Chunks of a compressed chunked document are
// not independently decompressible, so their previews are raw stream
// bytes and carry no meaning.
//
// Documents held only by the in-process fallback have no physical
// layout and yield an empty list.
func (s *Store) BuildMetadata(ctx context.Context, id string, previewChars int) []ChunkDescriptor {
	if id == "" || !s.backend.Durable() {
		return nil
	}

	if raw, ok := s.backend.Get(ctx, DocKey(id)); ok {
		d := ChunkDescriptor{Index: 0, Key: DocKey(id), StoredBytes: len(raw)}
		d.Preview, d.TokenCount = singlePreview(raw, previewChars)
		return []ChunkDescriptor{d}
	}

	n := s.chunkCount(ctx, id)
	var out []ChunkDescriptor
	for i := 0; i < n; i++ {
		key := ChunkKey(id, i)
		d := ChunkDescriptor{Index: i, Key: key}
		if val, ok := s.backend.Get(ctx, key); ok {
			d.StoredBytes = len(val)
			d.Preview, d.TokenCount = preview(val, previewChars)
		}
		out = append(out, d)
	}
	return out
}

// chunkCount reads the count from the meta record, or counts existing
// chunk keys from index 0 when the record is missing or unreadable.
func (s *Store) chunkCount(ctx context.Context, id string) int {
	if raw, ok := s.backend.Get(ctx, MetaKey(id)); ok {
		m, err := chunk.DecodeMeta(raw)
		if err == nil {
			return m.Chunks
		}
		fwlog.Warnf("Unreadable meta for doc %s, scanning chunk keys: %v", id, err)
	}
	n := 0
	for s.backend.Exists(ctx, ChunkKey(id, n)) {
		n++
	}
	return n
}

func singlePreview(raw []byte, limit int) (*string, *int) {
	if !codec.HasMarker(raw) {
		return preview(raw, limit)
	}
	dec, err := codec.DecompressLimit(codec.StripMarker(raw), limit)
	if err != nil {
		return nil, nil
	}
	return preview(dec, limit)
}

// preview returns the first limit bytes as text, invalid sequences
// replaced, plus a whitespace token count. Both are nil when there is
// nothing to show.
func preview(b []byte, limit int) (*string, *int) {
	if limit <= 0 || len(b) == 0 {
		return nil, nil
	}
	if len(b) > limit {
		b = b[:limit]
	}
	p := strings.ToValidUTF8(string(b), "�")
	tokens := len(strings.Fields(p))
	return &p, &tokens
}

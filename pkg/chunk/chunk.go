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

// Package chunk decides how a payload is laid out in the key-value store
// and puts chunked payloads back together.
package chunk

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingChunk means a chunk named by the meta record is gone.
	ErrMissingChunk = errors.New("chunk: missing chunk")
	// ErrInvalidMeta means a meta record could not be decoded or is inconsistent.
	ErrInvalidMeta = errors.New("chunk: invalid meta record")
)

// MaxChunks bounds the chunk count accepted from a stored meta record.
const MaxChunks = 1 << 16

// Meta describes a chunked payload. It is stored as JSON next to the chunks
// and its field names are part of the persisted format.
type Meta struct {
	Chunks      int  `json:"chunks"`
	OrigBytes   int  `json:"orig_bytes"`
	StoredBytes int  `json:"stored_bytes"`
	Compressed  bool `json:"compressed"`
}

// Layout is the storage form chosen for a payload.
type Layout struct {
	Chunked bool
	Count   int
}

// Plan returns the layout for a payload of size bytes. Payloads up to
// maxSingle bytes use a single key; larger ones are cut into pieces of
// chunkSize bytes.
func Plan(size, maxSingle, chunkSize int) Layout {
	if size <= maxSingle || chunkSize <= 0 {
		return Layout{Count: 1}
	}
	return Layout{Chunked: true, Count: (size + chunkSize - 1) / chunkSize}
}

// Split cuts payload into consecutive pieces of chunkSize bytes; the last
// piece may be shorter. Pieces alias payload.
func Split(payload []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 || len(payload) == 0 {
		return [][]byte{payload}
	}
	pieces := make([][]byte, 0, (len(payload)+chunkSize-1)/chunkSize)
	for start := 0; start < len(payload); start += chunkSize {
		end := min(start+chunkSize, len(payload))
		pieces = append(pieces, payload[start:end:end])
	}
	return pieces
}

// EncodeMeta returns the JSON form of m.
func EncodeMeta(m Meta) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMeta parses a stored meta record. Records no writer could have
// produced are rejected: negative sizes, more chunks than stored bytes
// (an empty payload has one chunk), or more than MaxChunks chunks.
func DecodeMeta(raw []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrInvalidMeta, err)
	}
	switch {
	case m.Chunks < 0:
		return Meta{}, fmt.Errorf("%w: negative chunk count %d", ErrInvalidMeta, m.Chunks)
	case m.OrigBytes < 0 || m.StoredBytes < 0:
		return Meta{}, fmt.Errorf("%w: negative size (orig %d, stored %d)", ErrInvalidMeta, m.OrigBytes, m.StoredBytes)
	case m.Chunks > MaxChunks:
		return Meta{}, fmt.Errorf("%w: %d chunks exceeds %d", ErrInvalidMeta, m.Chunks, MaxChunks)
	case m.Chunks > max(m.StoredBytes, 1):
		return Meta{}, fmt.Errorf("%w: %d chunks for %d stored bytes", ErrInvalidMeta, m.Chunks, m.StoredBytes)
	}
	return m, nil
}

// Reassemble fetches chunks 0..m.Chunks-1 and concatenates them. Only the
// count and the order are used; chunk sizes are whatever the writer chose.
// If any chunk is missing nothing is returned. m.StoredBytes is not
// trusted as an allocation size.
func Reassemble(m Meta, fetch func(i int) ([]byte, bool)) ([]byte, error) {
	if m.Chunks < 0 || m.Chunks > MaxChunks {
		return nil, fmt.Errorf("%w: chunk count %d", ErrInvalidMeta, m.Chunks)
	}
	var out []byte
	for i := 0; i < m.Chunks; i++ {
		piece, ok := fetch(i)
		if !ok {
			return nil, fmt.Errorf("%w: index %d of %d", ErrMissingChunk, i, m.Chunks)
		}
		out = append(out, piece...)
	}
	return out, nil
}

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

// Package codec implements the reversible compression applied to document
// payloads before they are written to the key-value backend.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Level is the gzip level used for every payload. Stored payloads are
// plain gzip members, so any gzip reader can decode historical data.
const Level = 6

// Marker prefixes a compressed payload stored under a single key.
var Marker = []byte("gzip:")

var errEmptyStream = errors.New("codec: empty gzip stream")

// ShouldCompress reports whether a payload of size bytes crosses the
// compression threshold. A non-positive threshold disables compression.
func ShouldCompress(size, threshold int) bool {
	return threshold > 0 && size >= threshold
}

// Compress returns the gzip encoding of data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, Level)
	if err != nil {
		return nil, fmt.Errorf("codec: new writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("codec: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errEmptyStream
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: new reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("codec: decompress: %w", err)
	}
	return out, nil
}

// DecompressLimit inflates at most limit bytes of output. It is meant for
// previews: the stream is not verified past the returned prefix, and an
// error is returned only when not even the prefix can be produced.
func DecompressLimit(data []byte, limit int) ([]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, errEmptyStream
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: new reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)))
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("codec: decompress prefix: %w", err)
	}
	return out, nil
}

// HasMarker reports whether a single-key value carries the compression
// marker.
func HasMarker(value []byte) bool {
	return bytes.HasPrefix(value, Marker)
}

// WithMarker returns Marker followed by payload in a fresh slice.
func WithMarker(payload []byte) []byte {
	out := make([]byte, 0, len(Marker)+len(payload))
	out = append(out, Marker...)
	return append(out, payload...)
}

// StripMarker returns value without the leading Marker.
func StripMarker(value []byte) []byte {
	return bytes.TrimPrefix(value, Marker)
}

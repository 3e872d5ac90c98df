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

import "strconv"

// Key layout shared with every deployment that ever wrote documents.
// Do not change.
const (
	keyPrefix  = "doc:"
	metaSuffix = ":meta"
	chunkInfix = ":chunk:"
)

// DocKey is the single-key location of a document.
func DocKey(id string) string {
	return keyPrefix + id
}

// MetaKey is the location of the meta record of a chunked document.
func MetaKey(id string) string {
	return keyPrefix + id + metaSuffix
}

// ChunkKey is the location of chunk i of a chunked document.
func ChunkKey(id string, i int) string {
	return keyPrefix + id + chunkInfix + strconv.Itoa(i)
}

func chunkKeys(id string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = ChunkKey(id, i)
	}
	return keys
}

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

package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/docsearch/pkg/docstore"
	"github.com/fawa-io/docsearch/service/document"
)

func newServer(t *testing.T) *client {
	t.Helper()
	store := docstore.New(nil, nil, docstore.DefaultOptions())
	h := &document.Handler{
		Ingestor: &document.Ingestor{Store: store, StorageName: "memory"},
		Store:    store,
	}
	srv := httptest.NewServer(document.Router(h))
	t.Cleanup(srv.Close)
	return &client{base: srv.URL, http: srv.Client()}
}

func TestRun(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha line\nbeta line\n"), 0o600))

	out, err := run(ctx, c, []string{"upload", path})
	require.NoError(t, err)
	docID, ok := out["doc_id"].(string)
	require.True(t, ok)
	assert.Equal(t, "notes.txt", out["filename"])

	out, err = run(ctx, c, []string{"ask", docID, "beta", "line"})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Contains(t, out["answer"], "beta line")

	out, err = run(ctx, c, []string{"get", docID})
	require.NoError(t, err)
	assert.Equal(t, "alpha line\nbeta line\n", out["text"])

	out, err = run(ctx, c, []string{"delete", docID})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])

	_, err = run(ctx, c, []string{"get", docID})
	assert.ErrorContains(t, err, "404")
}

func TestRun_InvalidCommand(t *testing.T) {
	c := newServer(t)
	for _, args := range [][]string{nil, {"upload"}, {"ask", "id"}, {"frobnicate", "x"}} {
		_, err := run(context.Background(), c, args)
		assert.Error(t, err, args)
	}
}

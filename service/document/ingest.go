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

package document

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/fawa-io/docsearch/pkg/docstore"
	"github.com/fawa-io/docsearch/pkg/fwlog"
	"github.com/fawa-io/docsearch/pkg/metastore"
)

// ErrStoreFailed is returned when the text store rejects a document.
var ErrStoreFailed = errors.New("failed to store document text")

// Store is the document text store used by the service.
type Store interface {
	Put(ctx context.Context, id, text string) bool
	Get(ctx context.Context, id string) string
	Clear(ctx context.Context, id string) bool
	Health(ctx context.Context) bool
	BuildMetadata(ctx context.Context, id string, previewChars int) []docstore.ChunkDescriptor
}

// Metastore records documents and their chunks.
type Metastore interface {
	InsertDocument(ctx context.Context, d metastore.Document) error
	UpdateStatus(ctx context.Context, docID, status string) error
	GetDocument(ctx context.Context, docID string) (*metastore.Document, error)
	InsertChunks(ctx context.Context, docID string, chunks []metastore.Chunk) error
}

// Archiver keeps the original bytes of uploads.
type Archiver interface {
	Put(ctx context.Context, docID, filename string, data []byte) error
	PresignedURL(ctx context.Context, docID, filename string, expires time.Duration) (*url.URL, error)
}

// Upload is one document to ingest. Raw holds the uploaded file, if
// any; Text is what was extracted from it or submitted directly.
type Upload struct {
	UserID   string
	Filename string
	Text     string
	Raw      []byte
	Pages    int
}

// Ingested describes a stored upload.
type Ingested struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Chunks    int    `json:"chunks"`
}

// Ingestor stores uploads and records their metadata. Meta and Archive
// are optional.
type Ingestor struct {
	Store   Store
	Meta    Metastore
	Archive Archiver
	// StorageName is recorded as the storage of each document.
	StorageName  string
	PreviewChars int

	newID func() string
}

func (in *Ingestor) id() string {
	if in.newID != nil {
		return in.newID()
	}
	return uuid.NewString()
}

// Ingest stores u under a new document id. The text must be stored for
// the call to succeed; archiving is best effort.
func (in *Ingestor) Ingest(ctx context.Context, u Upload) (*Ingested, error) {
	docID := in.id()

	size := int64(len(u.Text))
	if u.Raw != nil {
		size = int64(len(u.Raw))
	}

	if in.Archive != nil && u.Raw != nil {
		if err := in.Archive.Put(ctx, docID, u.Filename, u.Raw); err != nil {
			fwlog.Errorf("Failed to archive %s for doc %s: %v", u.Filename, docID, err)
		}
	}

	if !in.Store.Put(ctx, docID, u.Text) {
		return nil, ErrStoreFailed
	}

	previewChars := in.PreviewChars
	if previewChars <= 0 {
		previewChars = docstore.DefaultPreviewChars
	}
	descs := in.Store.BuildMetadata(ctx, docID, previewChars)

	if in.Meta != nil {
		if err := in.record(ctx, docID, u, size, descs); err != nil {
			return nil, err
		}
	}

	fwlog.Infof("Ingested %s as doc %s (%d bytes, %d chunks).", u.Filename, docID, size, len(descs))
	return &Ingested{
		DocID:     docID,
		Filename:  u.Filename,
		SizeBytes: size,
		Chunks:    len(descs),
	}, nil
}

func (in *Ingestor) record(ctx context.Context, docID string, u Upload, size int64, descs []docstore.ChunkDescriptor) error {
	doc := metastore.Document{
		DocID:     docID,
		UserID:    u.UserID,
		Filename:  u.Filename,
		Storage:   in.StorageName,
		SizeBytes: size,
	}
	if u.Pages > 0 {
		pages := u.Pages
		doc.TotalPages = &pages
	}
	if err := in.Meta.InsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("record document: %w", err)
	}

	chunks := make([]metastore.Chunk, 0, len(descs))
	for _, d := range descs {
		chunks = append(chunks, metastore.Chunk{
			Index:       d.Index,
			Key:         d.Key,
			StoredBytes: d.StoredBytes,
			Preview:     d.Preview,
			TokenCount:  d.TokenCount,
		})
	}
	if err := in.Meta.InsertChunks(ctx, docID, chunks); err != nil {
		return fmt.Errorf("record chunks: %w", err)
	}

	if err := in.Meta.UpdateStatus(ctx, docID, metastore.StatusStored); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

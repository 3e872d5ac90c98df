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

// Package metastore records uploaded documents and the physical chunks of
// their stored text in SQLite.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fawa-io/docsearch/pkg/fwlog"
	"github.com/fawa-io/docsearch/pkg/util"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("metastore: document not found")

// Document statuses.
const (
	StatusUploaded = "uploaded"
	StatusStored   = "stored"
	StatusError    = "error"
	StatusCleared  = "cleared"
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id      TEXT PRIMARY KEY,
	user_id     TEXT,
	filename    TEXT NOT NULL,
	storage     TEXT NOT NULL,
	size_bytes  INTEGER,
	status      TEXT NOT NULL,
	total_pages INTEGER,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id     TEXT PRIMARY KEY,
	doc_id       TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	start_offset INTEGER,
	end_offset   INTEGER,
	text_preview TEXT,
	redis_key    TEXT NOT NULL,
	stored_bytes INTEGER,
	token_count  INTEGER,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, chunk_index);
CREATE TABLE IF NOT EXISTS embeddings_map (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id     TEXT NOT NULL,
	vector_index INTEGER NOT NULL,
	model_name   TEXT,
	score        REAL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings_map(chunk_id);
`

type Document struct {
	DocID      string    `json:"doc_id"`
	UserID     string    `json:"user_id,omitempty"`
	Filename   string    `json:"filename"`
	Storage    string    `json:"storage"`
	SizeBytes  int64     `json:"size_bytes"`
	Status     string    `json:"status"`
	TotalPages *int      `json:"total_pages,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Chunk struct {
	ChunkID     string    `json:"chunk_id"`
	DocID       string    `json:"doc_id"`
	Index       int       `json:"chunk_index"`
	Key         string    `json:"redis_key"`
	StoredBytes int       `json:"stored_bytes"`
	Preview     *string   `json:"text_preview,omitempty"`
	TokenCount  *int      `json:"token_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Embedding maps a chunk to a row of an external vector index.
type Embedding struct {
	ChunkID     string    `json:"chunk_id"`
	VectorIndex int       `json:"vector_index"`
	ModelName   string    `json:"model_name,omitempty"`
	Score       *float64  `json:"score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Config struct {
	// Path is the database file; it is created if missing.
	Path string
	// PoolSize defaults to 4. Use 1 for ":memory:".
	PoolSize int
}

type Store struct {
	pool *sqlitex.Pool
	now  func() time.Time
}

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("metastore: Path is required")
	}
	if err := util.EnsureParentDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("metastore: %w", err)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: opening %s: %w", cfg.Path, err)
	}
	fwlog.Infof("Metadata store opened at %s (pool size %d).", cfg.Path, poolSize)

	return &Store{pool: pool, now: time.Now}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("metastore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("metastore: creating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// InsertDocument creates the row for d, or updates filename, size and
// page count of an existing one. New rows get status "uploaded".
func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: insert document: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.timestamp()
	err = sqlitex.Execute(conn, `INSERT INTO documents
		(doc_id, user_id, filename, storage, size_bytes, status, total_pages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (doc_id) DO UPDATE
			SET filename = excluded.filename,
			    size_bytes = excluded.size_bytes,
			    total_pages = excluded.total_pages,
			    updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				d.DocID,
				nullString(d.UserID),
				d.Filename,
				d.Storage,
				d.SizeBytes,
				StatusUploaded,
				nullInt(d.TotalPages),
				now,
				now,
			},
		})
	if err != nil {
		return fmt.Errorf("metastore: insert document %s: %w", d.DocID, err)
	}
	fwlog.Debugf("Recorded document %s (%s).", d.DocID, d.Filename)
	return nil
}

// UpdateStatus sets the status of a document.
func (s *Store) UpdateStatus(ctx context.Context, docID, status string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: update status: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE documents SET status = ?, updated_at = ? WHERE doc_id = ?`,
		&sqlitex.ExecOptions{Args: []any{status, s.timestamp(), docID}})
	if err != nil {
		return fmt.Errorf("metastore: update status of %s: %w", docID, err)
	}
	if conn.Changes() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDocument returns the row for docID or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("metastore: get document: %w", err)
	}
	defer s.pool.Put(conn)

	var doc *Document
	err = sqlitex.Execute(conn, `SELECT doc_id, user_id, filename, storage, size_bytes,
		status, total_pages, created_at, updated_at FROM documents WHERE doc_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{docID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				d := Document{
					DocID:      stmt.ColumnText(0),
					UserID:     stmt.ColumnText(1),
					Filename:   stmt.ColumnText(2),
					Storage:    stmt.ColumnText(3),
					SizeBytes:  stmt.ColumnInt64(4),
					Status:     stmt.ColumnText(5),
					TotalPages: columnInt(stmt, 6),
				}
				var err error
				if d.CreatedAt, err = time.Parse(timeLayout, stmt.ColumnText(7)); err != nil {
					return err
				}
				if d.UpdatedAt, err = time.Parse(timeLayout, stmt.ColumnText(8)); err != nil {
					return err
				}
				doc = &d
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("metastore: get document %s: %w", docID, err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// InsertChunks records chunks of docID in one transaction. Chunks
// without an id get a random one; an existing id is left untouched.
func (s *Store) InsertChunks(ctx context.Context, docID string, chunks []Chunk) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: insert chunks: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	now := s.timestamp()
	for _, c := range chunks {
		id := c.ChunkID
		if id == "" {
			id = uuid.NewString()
		}
		err = sqlitex.Execute(conn, `INSERT INTO chunks
			(chunk_id, doc_id, chunk_index, text_preview, redis_key, stored_bytes, token_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (chunk_id) DO NOTHING`,
			&sqlitex.ExecOptions{
				Args: []any{
					id,
					docID,
					c.Index,
					nullStringPtr(c.Preview),
					c.Key,
					c.StoredBytes,
					nullInt(c.TokenCount),
					now,
				},
			})
		if err != nil {
			return fmt.Errorf("metastore: insert chunk %d of %s: %w", c.Index, docID, err)
		}
	}
	fwlog.Debugf("Recorded %d chunks for document %s.", len(chunks), docID)
	return nil
}

// ListChunks returns the recorded chunks of docID ordered by index.
func (s *Store) ListChunks(ctx context.Context, docID string) ([]Chunk, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("metastore: list chunks: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Chunk
	err = sqlitex.Execute(conn, `SELECT chunk_id, doc_id, chunk_index, redis_key, stored_bytes,
		text_preview, token_count, created_at FROM chunks WHERE doc_id = ? ORDER BY chunk_index`,
		&sqlitex.ExecOptions{
			Args: []any{docID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				created, err := time.Parse(timeLayout, stmt.ColumnText(7))
				if err != nil {
					return err
				}
				c := Chunk{
					ChunkID:     stmt.ColumnText(0),
					DocID:       stmt.ColumnText(1),
					Index:       stmt.ColumnInt(2),
					Key:         stmt.ColumnText(3),
					StoredBytes: stmt.ColumnInt(4),
					TokenCount:  columnInt(stmt, 6),
					CreatedAt:   created,
				}
				if stmt.ColumnType(5) != sqlite.TypeNull {
					p := stmt.ColumnText(5)
					c.Preview = &p
				}
				out = append(out, c)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("metastore: list chunks of %s: %w", docID, err)
	}
	return out, nil
}

// InsertEmbeddings records embeddings in one transaction. Every entry
// needs a chunk id; nothing is written if one is missing.
func (s *Store) InsertEmbeddings(ctx context.Context, embeddings []Embedding) (err error) {
	if len(embeddings) == 0 {
		return nil
	}
	for i, e := range embeddings {
		if e.ChunkID == "" {
			return fmt.Errorf("metastore: embedding %d has no chunk id", i)
		}
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metastore: insert embeddings: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metastore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	now := s.timestamp()
	for _, e := range embeddings {
		err = sqlitex.Execute(conn, `INSERT INTO embeddings_map
			(chunk_id, vector_index, model_name, score, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					e.ChunkID,
					e.VectorIndex,
					nullString(e.ModelName),
					nullFloat(e.Score),
					now,
				},
			})
		if err != nil {
			return fmt.Errorf("metastore: insert embedding for chunk %s: %w", e.ChunkID, err)
		}
	}
	fwlog.Debugf("Recorded %d embeddings.", len(embeddings))
	return nil
}

// ListEmbeddings returns the embeddings of the chunks of docID, ordered
// by chunk index and then insertion order.
func (s *Store) ListEmbeddings(ctx context.Context, docID string) ([]Embedding, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("metastore: list embeddings: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Embedding
	err = sqlitex.Execute(conn, `SELECT e.chunk_id, e.vector_index, e.model_name, e.score, e.created_at
		FROM embeddings_map e JOIN chunks c ON c.chunk_id = e.chunk_id
		WHERE c.doc_id = ? ORDER BY c.chunk_index, e.id`,
		&sqlitex.ExecOptions{
			Args: []any{docID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				created, err := time.Parse(timeLayout, stmt.ColumnText(4))
				if err != nil {
					return err
				}
				e := Embedding{
					ChunkID:     stmt.ColumnText(0),
					VectorIndex: stmt.ColumnInt(1),
					ModelName:   stmt.ColumnText(2),
					CreatedAt:   created,
				}
				if stmt.ColumnType(3) != sqlite.TypeNull {
					v := stmt.ColumnFloat(3)
					e.Score = &v
				}
				out = append(out, e)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("metastore: list embeddings of %s: %w", docID, err)
	}
	return out, nil
}

func columnInt(stmt *sqlite.Stmt, col int) *int {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	v := stmt.ColumnInt(col)
	return &v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

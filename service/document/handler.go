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

// Package document serves the document upload, retrieval and question
// endpoints over HTTP.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fawa-io/docsearch/pkg/answer"
	"github.com/fawa-io/docsearch/pkg/docstore"
	"github.com/fawa-io/docsearch/pkg/extract"
	"github.com/fawa-io/docsearch/pkg/fwlog"
	"github.com/fawa-io/docsearch/pkg/metastore"
)

const (
	DefaultPreviewLimit   = 2000
	DefaultMaxUploadBytes = 20 << 20

	presignExpiry = 15 * time.Minute
)

// Handler implements the HTTP endpoints. Meta and Archive may be nil.
type Handler struct {
	Ingestor *Ingestor
	Store    Store
	Meta     Metastore
	Archive  Archiver

	// PreviewLimit bounds the text returned with ?preview=1, in characters.
	PreviewLimit   int
	MaxUploadBytes int64
	// RemoteConfigured is set when a remote backend address was given, so
	// that an unhealthy backend is reported as an outage.
	RemoteConfigured bool
	// StagingPassword guards every route but /healthz when set.
	StagingPassword string
}

type errorResponse struct {
	Error string `json:"error"`
}

type textUpload struct {
	UserID   string `json:"user_id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type documentResponse struct {
	DocID    string              `json:"doc_id"`
	Text     string              `json:"text"`
	Document *metastore.Document `json:"document,omitempty"`
}

type chunksResponse struct {
	DocID  string                     `json:"doc_id"`
	Chunks []docstore.ChunkDescriptor `json:"chunks"`
}

type askRequest struct {
	DocID    string `json:"doc_id"`
	Question string `json:"question"`
}

type askResponse struct {
	OK     bool   `json:"ok"`
	Answer string `json:"answer"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type healthResponse struct {
	OK      bool `json:"ok"`
	Backend bool `json:"backend"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fwlog.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) maxUpload() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

// Upload accepts a JSON text payload, form fields, or a multipart file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req textUpload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badBody(w, err)
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		h.ingest(w, r, Upload{UserID: req.UserID, Filename: orDefault(req.Filename, "payload.txt"), Text: req.Text})
		return
	}

	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(h.maxUpload())
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		h.badBody(w, err)
		return
	}

	userID := r.FormValue("user_id")
	if text := r.FormValue("text"); text != "" {
		h.ingest(w, r, Upload{UserID: userID, Filename: orDefault(r.FormValue("filename"), "form.txt"), Text: text})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no text provided and no file uploaded")
		return
	}
	defer file.Close()

	filename := cleanFilename(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "empty filename or no file")
		return
	}
	if !extract.Allowed(filename) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", extract.Ext(filename)))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.badBody(w, err)
		return
	}

	res := extract.File(filename, data)
	h.ingest(w, r, Upload{
		UserID:   userID,
		Filename: filename,
		Text:     res.Text,
		Raw:      data,
		Pages:    res.Pages,
	})
}

func (h *Handler) badBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, u Upload) {
	res, err := h.Ingestor.Ingest(r.Context(), u)
	if err != nil {
		fwlog.Errorf("Upload of %s failed: %v", u.Filename, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetDocument returns the stored text, truncated with ?preview=1.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	text := h.Store.Get(r.Context(), docID)
	if text == "" {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	if preview := r.URL.Query().Get("preview"); preview == "1" || preview == "true" {
		limit := h.PreviewLimit
		if limit <= 0 {
			limit = DefaultPreviewLimit
		}
		text = truncateRunes(text, limit)
	}

	resp := documentResponse{DocID: docID, Text: text}
	if h.Meta != nil {
		doc, err := h.Meta.GetDocument(r.Context(), docID)
		switch {
		case err == nil:
			resp.Document = doc
		case !errors.Is(err, metastore.ErrNotFound):
			fwlog.Errorf("Failed to load metadata of doc %s: %v", docID, err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChunks lists the physical layout of a stored document.
func (h *Handler) GetChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	chunks := h.Store.BuildMetadata(r.Context(), docID, docstore.DefaultPreviewChars)
	if chunks == nil {
		chunks = []docstore.ChunkDescriptor{}
	}
	writeJSON(w, http.StatusOK, chunksResponse{DocID: docID, Chunks: chunks})
}

// GetOriginal redirects to a temporary download URL of the archived upload.
func (h *Handler) GetOriginal(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil || h.Meta == nil {
		writeError(w, http.StatusNotFound, "originals are not archived")
		return
	}
	docID := chi.URLParam(r, "id")
	doc, err := h.Meta.GetDocument(r.Context(), docID)
	if errors.Is(err, metastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		fwlog.Errorf("Failed to load metadata of doc %s: %v", docID, err)
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	u, err := h.Archive.PresignedURL(r.Context(), docID, doc.Filename, presignExpiry)
	if err != nil {
		fwlog.Errorf("Failed to presign original of doc %s: %v", docID, err)
		writeError(w, http.StatusInternalServerError, "failed to create download link")
		return
	}
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// Ask answers a question against a stored document.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := strings.TrimSpace(req.Question)
	if q == "" {
		writeJSON(w, http.StatusOK, askResponse{Answer: "Please ask a question."})
		return
	}
	text := h.Store.Get(r.Context(), req.DocID)
	if text == "" {
		writeJSON(w, http.StatusOK, askResponse{Answer: "No document text available yet. Please upload a file first."})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{OK: true, Answer: answer.Naive(text, q)})
}

// DeleteDocument clears every stored form of a document.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	ok := h.Store.Clear(r.Context(), docID)

	if ok && h.Meta != nil {
		err := h.Meta.UpdateStatus(r.Context(), docID, metastore.StatusCleared)
		if err != nil && !errors.Is(err, metastore.ErrNotFound) {
			fwlog.Errorf("Failed to mark doc %s cleared: %v", docID, err)
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

// Health reports backend health. It is not ok only when a configured
// remote backend is unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	backend := h.Store.Health(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		OK:      backend || !h.RemoteConfigured,
		Backend: backend,
	})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// cleanFilename drops any directory part of a client supplied name.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

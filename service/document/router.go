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
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/fawa-io/docsearch/pkg/metrics"
)

// NewCORS allows browser clients from any origin.
func NewCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	})
}

// Router mounts h on a chi router with CORS, request ids, panic recovery,
// request metrics and the optional staging password.
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(metrics.Middleware())
	r.Use(StagingAuth(h.StagingPassword))

	r.Post("/upload", h.Upload)
	r.Post("/ask", h.Ask)
	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/documents/{id}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Delete("/", h.DeleteDocument)
		r.Get("/chunks", h.GetChunks)
		r.Get("/original", h.GetOriginal)
	})

	return NewCORS().Handler(r)
}

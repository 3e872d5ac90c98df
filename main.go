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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fawa-io/docsearch/pkg/archive"
	"github.com/fawa-io/docsearch/pkg/config"
	"github.com/fawa-io/docsearch/pkg/docstore"
	"github.com/fawa-io/docsearch/pkg/fwlog"
	"github.com/fawa-io/docsearch/pkg/kv"
	"github.com/fawa-io/docsearch/pkg/metastore"
	"github.com/fawa-io/docsearch/service/document"
)

func main() {
	if err := config.Initconfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()
	config.ApplyLogLevel(cfg)
	fwlog.Infof("Logger initialized with level: %s", cfg.LogLevel)

	ctx := context.Background()

	fallback := kv.NewMemoryBackend()
	backend := kv.Open(ctx, cfg.RedisURL, fallback)
	store := docstore.New(backend, fallback, cfg.Store())

	storageName := "memory"
	if backend.Durable() {
		storageName = "redis"
	}

	meta, err := metastore.Open(metastore.Config{Path: cfg.DatabasePath})
	if err != nil {
		fwlog.Fatalf("Failed to open metadata store: %v", err)
	}

	// Keep the interface nil, not a typed nil pointer, when archiving is off.
	var archiver document.Archiver
	minioStore, err := archive.New(ctx, archive.Config{
		Endpoint:        cfg.MinIO.Endpoint,
		AccessKeyID:     cfg.MinIO.AccessKeyID,
		SecretAccessKey: cfg.MinIO.SecretAccessKey,
		Bucket:          cfg.MinIO.Bucket,
		UseSSL:          cfg.MinIO.UseSSL,
	})
	switch {
	case errors.Is(err, archive.ErrDisabled):
		fwlog.Info("MinIO not configured; uploads are not archived.")
	case err != nil:
		fwlog.Warnf("MinIO unavailable, uploads are not archived: %v", err)
	default:
		archiver = minioStore
	}

	h := &document.Handler{
		Ingestor: &document.Ingestor{
			Store:        store,
			Meta:         meta,
			Archive:      archiver,
			StorageName:  storageName,
			PreviewChars: docstore.DefaultPreviewChars,
		},
		Store:            store,
		Meta:             meta,
		Archive:          archiver,
		PreviewLimit:     cfg.PreviewLimit,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		RemoteConfigured: cfg.RedisURL != "",
		StagingPassword:  cfg.StagingPassword,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           document.Router(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fwlog.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fwlog.Errorf("Server shutdown error: %v", err)
		}
		if err := store.Close(); err != nil {
			fwlog.Errorf("Error closing document store: %v", err)
		}
		if err := meta.Close(); err != nil {
			fwlog.Errorf("Error closing metadata store: %v", err)
		}

		fwlog.Info("Server shutdown complete")
		os.Exit(0)
	}()

	fwlog.Infof("Server starting on %v (storage: %s)", cfg.Addr, storageName)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fwlog.Fatalf("Failed to start server: %v", err)
	}
}

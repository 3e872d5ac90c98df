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

// Package archive keeps the original bytes of uploaded files in a MinIO
// (S3 compatible) bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/docsearch/pkg/fwlog"
)

// ErrDisabled is returned by New when no endpoint or bucket is configured.
var ErrDisabled = errors.New("archive: not configured")

// BucketTimeout bounds the bucket check done by New.
const BucketTimeout = 5 * time.Second

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// MinIO stores uploads under {doc_id}/{filename}.
type MinIO struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and creates the bucket if needed.
func New(ctx context.Context, cfg Config) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrDisabled
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: new client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, BucketTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive: check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("archive: create bucket %q: %w", cfg.Bucket, err)
		}
		fwlog.Infof("Created MinIO bucket %s", cfg.Bucket)
	}
	fwlog.Infof("Archiving uploads to MinIO bucket %s at %s", cfg.Bucket, cfg.Endpoint)

	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// ObjectName is the object key of an upload.
func ObjectName(docID, filename string) string {
	return path.Join(docID, path.Base(filepath.ToSlash(filename)))
}

// ContentType guesses the MIME type from the file extension.
func ContentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Put uploads data as the original of docID.
func (m *MinIO) Put(ctx context.Context, docID, filename string, data []byte) error {
	name := ObjectName(docID, filename)
	info, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(filename),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", name, err)
	}
	fwlog.Debugf("Archived %s (%d bytes, etag %s).", name, info.Size, info.ETag)
	return nil
}

// PresignedURL returns a temporary download URL for the original of docID.
func (m *MinIO) PresignedURL(ctx context.Context, docID, filename string, expires time.Duration) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, m.bucket, ObjectName(docID, filename), expires, nil)
}

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

// Command client talks to a running docsearch server.
//
//	client upload report.pdf
//	client ask <doc_id> "what is the total"
//	client get <doc_id>
//	client delete <doc_id>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/fawa-io/docsearch/pkg/fwlog"
)

type client struct {
	base string
	http *http.Client
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func (c *client) upload(ctx context.Context, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out map[string]any
	return out, c.do(req, &out)
}

func (c *client) ask(ctx context.Context, docID, question string) (map[string]any, error) {
	body, err := json.Marshal(map[string]string{"doc_id": docID, "question": question})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out map[string]any
	return out, c.do(req, &out)
}

func (c *client) document(ctx context.Context, method, docID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, c.do(req, &out)
}

func run(ctx context.Context, c *client, args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command: upload, ask, get or delete")
	}
	switch cmd, rest := args[0], args[1:]; {
	case cmd == "upload" && len(rest) == 1:
		return c.upload(ctx, rest[0])
	case cmd == "ask" && len(rest) >= 2:
		return c.ask(ctx, rest[0], strings.Join(rest[1:], " "))
	case cmd == "get" && len(rest) == 1:
		return c.document(ctx, http.MethodGet, rest[0])
	case cmd == "delete" && len(rest) == 1:
		return c.document(ctx, http.MethodDelete, rest[0])
	default:
		return nil, fmt.Errorf("invalid command: %s", strings.Join(args, " "))
	}
}

func main() {
	server := pflag.String("server", "http://127.0.0.1:8080", "docsearch server URL")
	timeout := pflag.Duration("timeout", 30*time.Second, "request timeout")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &client{base: strings.TrimRight(*server, "/"), http: http.DefaultClient}
	out, err := run(ctx, c, pflag.Args())
	if err != nil {
		fwlog.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fwlog.Fatal(err)
	}
}

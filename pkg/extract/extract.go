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

// Package extract turns uploaded files into plain text.
//
// Extraction never fails: a file that cannot be read yields a bracketed
// diagnostic such as "[PDF extract error] ..." as its text, which is
// stored like any other document.
package extract

import (
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
	FormatImage Format = "image"
	FormatText  Format = "text"
)

var formats = map[string]Format{
	"pdf":  FormatPDF,
	"docx": FormatDocx,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"webp": FormatImage,
	"bmp":  FormatImage,
	"tiff": FormatImage,
	"txt":  FormatText,
	"csv":  FormatText,
	"md":   FormatText,
}

// Result is the outcome of extracting one file.
type Result struct {
	Format Format
	Text   string
	// Pages is the page count of a PDF, 0 otherwise or when unknown.
	Pages int
}

// Ext returns the lower-cased extension of filename without the dot.
func Ext(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(filename)), "."))
}

// Allowed reports whether filename has a supported extension.
func Allowed(filename string) bool {
	_, ok := formats[Ext(filename)]
	return ok
}

// Detect returns the format of filename.
func Detect(filename string) (Format, bool) {
	f, ok := formats[Ext(filename)]
	return f, ok
}

// File extracts the text of data, dispatching on the extension of
// filename. Unsupported extensions yield an empty result.
func File(filename string, data []byte) Result {
	format, ok := Detect(filename)
	if !ok {
		return Result{}
	}

	switch format {
	case FormatPDF:
		text, pages := PDF(data)
		return Result{Format: format, Text: text, Pages: pages}
	case FormatDocx:
		return Result{Format: format, Text: Docx(data)}
	case FormatImage:
		return Result{Format: format, Text: Image(data)}
	default:
		return Result{Format: format, Text: PlainText(data)}
	}
}

// Image would run OCR on data. No OCR engine is linked into this build.
func Image([]byte) string {
	return "[OCR unavailable] no OCR engine is configured; cannot read images yet."
}

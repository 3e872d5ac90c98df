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

package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDF returns the plain text of a PDF and its page count.
func PDF(data []byte) (string, int) {
	text, pages, err := pdfText(data)
	if err != nil {
		return "[PDF extract error] " + err.Error(), pages
	}
	return text, pages
}

// PageCount returns the number of pages of a PDF, or 0 when data cannot
// be parsed.
func PageCount(data []byte) int {
	r, err := openPDF(data)
	if err != nil {
		return 0
	}
	return r.NumPage()
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pdfText(data []byte) (text string, pages int, err error) {
	r, err := openPDF(data)
	if err != nil {
		return "", 0, err
	}
	pages = r.NumPage()

	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", pages, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", pages, err
	}
	return buf.String(), pages, nil
}

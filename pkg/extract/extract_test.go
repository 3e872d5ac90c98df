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
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowed(t *testing.T) {
	testCases := []struct {
		filename string
		want     bool
		format   Format
	}{
		{filename: "report.pdf", want: true, format: FormatPDF},
		{filename: "REPORT.PDF", want: true, format: FormatPDF},
		{filename: "notes.docx", want: true, format: FormatDocx},
		{filename: "scan.jpeg", want: true, format: FormatImage},
		{filename: "scan.tiff", want: true, format: FormatImage},
		{filename: "data.csv", want: true, format: FormatText},
		{filename: "README.md", want: true, format: FormatText},
		{filename: "archive.tar.gz", want: false},
		{filename: "noext", want: false},
		{filename: "", want: false},
		{filename: "legacy.doc", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.want, Allowed(tc.filename))
			format, ok := Detect(tc.filename)
			assert.Equal(t, tc.want, ok)
			assert.Equal(t, tc.format, format)
		})
	}
}

func TestPlainText(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want string
	}{
		{name: "utf8", data: []byte("héllo wörld"), want: "héllo wörld"},
		{name: "latin1", data: []byte{'c', 'a', 'f', 0xe9}, want: "café"},
		{name: "bom", data: []byte("\xef\xbb\xbfhello"), want: "hello"},
		{name: "empty", data: nil, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PlainText(tc.data))
		})
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)

	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDocx(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>First </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Col A</w:t><w:tab/><w:t>Col B</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Line</w:t><w:br/><w:t>break &amp; more</w:t></w:r></w:p>`)

	assert.Equal(t, "First paragraph\nCol A\tCol B\n\nLine\nbreak & more", Docx(data))
}

func TestDocx_Errors(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "not a zip", data: []byte("plain bytes")},
		{name: "no document part", data: buf.Bytes()},
		{name: "broken xml", data: buildDocx(t, `<w:p><w:t>unclosed`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(Docx(tc.data), "[DOCX extract error] "))
		})
	}
}

// minimalPDF builds a one page PDF with a correct cross-reference table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDF(t *testing.T) {
	data := minimalPDF("Hello PDF")

	text, pages := PDF(data)
	assert.Equal(t, 1, pages)
	assert.Contains(t, text, "Hello PDF")
	assert.Equal(t, 1, PageCount(data))
}

func TestPDF_Garbage(t *testing.T) {
	text, pages := PDF([]byte("this is not a pdf"))
	assert.True(t, strings.HasPrefix(text, "[PDF extract error] "), text)
	assert.Equal(t, 0, pages)
	assert.Equal(t, 0, PageCount(nil))
}

func TestFile(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		data     []byte
		want     Result
	}{
		{
			name:     "text",
			filename: "notes.TXT",
			data:     []byte("plain"),
			want:     Result{Format: FormatText, Text: "plain"},
		},
		{
			name:     "docx",
			filename: "letter.docx",
			data:     buildDocx(t, `<w:p><w:r><w:t>Dear reader</w:t></w:r></w:p>`),
			want:     Result{Format: FormatDocx, Text: "Dear reader"},
		},
		{
			name:     "image",
			filename: "scan.png",
			data:     []byte{0x89, 'P', 'N', 'G'},
			want:     Result{Format: FormatImage, Text: Image(nil)},
		},
		{
			name:     "unsupported",
			filename: "run.exe",
			data:     []byte("MZ"),
			want:     Result{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, File(tc.filename, tc.data))
		})
	}
}

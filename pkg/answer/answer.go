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

// Package answer answers questions about a document by keyword matching.
package answer

import (
	"fmt"
	"strings"
)

// MaxHits bounds the number of lines returned by Naive.
const MaxHits = 8

// NoMatch is returned by Naive when no line matches.
const NoMatch = "I couldn't find a direct keyword match. Try different keywords."

// Naive returns the lines of text that contain every word of question
// longer than two characters, case-insensitively, as a bulleted list.
// A question with no such word matches every non-blank line.
func Naive(text, question string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}

	var hits []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsAll(strings.ToLower(line), words) {
			hits = append(hits, line)
			if len(hits) >= MaxHits {
				break
			}
		}
	}

	if len(hits) == 0 {
		return NoMatch
	}
	var b strings.Builder
	b.WriteString("Here are some lines that look relevant:\n\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(h)
	}
	return b.String()
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

var units = []string{"bytes", "KB", "MB", "GB", "TB"}

// HumanSize formats n bytes with one decimal in the largest unit that
// keeps the value below 1024.
func HumanSize(n int64) string {
	v := float64(n)
	for _, u := range units {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, u)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f PB", v)
}

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

// Package util holds small filesystem helpers.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const privateDirMode = 0o750

// IsDir reports whether dirpath exists and is a directory.
func IsDir(dirpath string) bool {
	info, err := os.Stat(dirpath)
	return err == nil && info.IsDir()
}

// EnsureDir creates dirpath and its parents if missing.
func EnsureDir(dirpath string) error {
	if IsDir(dirpath) {
		return nil
	}
	if err := os.MkdirAll(dirpath, privateDirMode); err != nil {
		return fmt.Errorf("create dir %s: %w", dirpath, err)
	}
	return nil
}

// EnsureParentDir creates the directory that will hold file. Special
// SQLite names such as ":memory:" and URIs are left alone.
func EnsureParentDir(file string) error {
	if file == "" || file[0] == ':' || len(file) > 5 && file[:5] == "file:" {
		return nil
	}
	return EnsureDir(filepath.Dir(file))
}

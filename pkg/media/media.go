// Copyright 2025 The Perch Authors
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

// Package media stores uploaded file bytes on disk. Metadata rows live in
// pkg/social; this package only handles the files themselves.
//
// Files are written under server-generated names (uuid plus an extension
// derived from the sniffed content type), so client-supplied names never
// reach the filesystem.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/perchsocial/perch/pkg/config"
)

// Sentinel errors for upload rejection.
var (
	// ErrTooLarge indicates the upload exceeded the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType indicates the sniffed content type is not in the
	// allowlist.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrNotFound indicates the named file does not exist on disk.
	ErrNotFound = errors.New("file not found")
)

// sniffLen is how many leading bytes content-type detection looks at.
const sniffLen = 512

// wellKnownExts pins extensions for the default allowlist so generated
// names do not depend on the host's mime database.
var wellKnownExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SavedFile describes a file written by Save.
type SavedFile struct {
	FileName    string
	ContentType string
	SizeBytes   int64
}

// DiskStore writes uploads to a flat directory.
type DiskStore struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
}

// NewDiskStore creates the upload directory if needed and returns a store
// enforcing the configured limits.
func NewDiskStore(cfg *config.MediaConfig) (*DiskStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("media configuration is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(t)] = true
	}

	return &DiskStore{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxUploadBytes,
		allowed:  allowed,
	}, nil
}

// Save sniffs the content type from the leading bytes, rejects files that
// are not allowlisted or that exceed the size limit, and writes the rest
// under a fresh uuid name. declaredName is only consulted for an extension
// when the sniffed type has no well-known one.
func (s *DiskStore) Save(r io.Reader, declaredName string) (*SavedFile, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !s.allowed[contentType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	fileName := uuid.NewString() + s.extensionFor(contentType, declaredName)
	path := filepath.Join(s.dir, fileName)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	// One byte past the limit is enough to tell an oversized upload from
	// one that fits exactly.
	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(r, s.maxBytes-int64(len(head))+1))
	written, err := io.Copy(dst, body)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(path)
		return nil, ErrTooLarge
	}

	return &SavedFile{
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   written,
	}, nil
}

// Path resolves a stored file name to its on-disk path. Names with path
// separators are rejected so metadata rows can never escape the directory.
func (s *DiskStore) Path(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}

	path := filepath.Join(s.dir, fileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return path, nil
}

// Remove deletes a stored file.
func (s *DiskStore) Remove(fileName string) error {
	path, err := s.Path(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func (s *DiskStore) extensionFor(contentType, declaredName string) string {
	if ext, ok := wellKnownExts[contentType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return strings.ToLower(filepath.Ext(filepath.Base(declaredName)))
}

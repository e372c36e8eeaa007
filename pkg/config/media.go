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

package config

import "fmt"

// MediaConfig configures uploaded-file storage.
type MediaConfig struct {
	// Dir is the directory where uploads are stored.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"title=Directory,default=media"`

	// MaxUploadBytes is the per-file upload size limit.
	MaxUploadBytes int64 `yaml:"max_upload_bytes,omitempty" json:"max_upload_bytes,omitempty" jsonschema:"title=Max Upload Bytes,minimum=1"`

	// AllowedTypes lists the accepted content types.
	AllowedTypes []string `yaml:"allowed_types,omitempty" json:"allowed_types,omitempty" jsonschema:"title=Allowed Types"`
}

// SetDefaults applies default values to the media config.
func (c *MediaConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "media"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 10 << 20 // 10 MiB
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	}
}

// Validate checks the media configuration.
func (c *MediaConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if len(c.AllowedTypes) == 0 {
		return fmt.Errorf("allowed_types must not be empty")
	}
	return nil
}

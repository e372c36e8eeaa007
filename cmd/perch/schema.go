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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/perchsocial/perch/pkg/config"
)

// SchemaCmd generates JSON Schema from the Perch config structs, for
// editor completion and config linting. Output goes to stdout.
type SchemaCmd struct {
	// Compact enables compact JSON output (no indentation)
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		// Disallow additional properties for strict validation
		AllowAdditionalProperties: false,
		// Inline all definitions (no $ref) for consumer compatibility
		DoNotReference: true,
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://perch.social/schemas/config.json"
	schema.Title = "Perch Configuration Schema"
	schema.Description = "Complete configuration schema for the Perch social backend"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"server": map[string]interface{}{
				"host": "0.0.0.0",
				"port": 8080,
			},
			"databases": map[string]interface{}{
				"main": map[string]interface{}{
					"driver":   "sqlite",
					"database": "perch.db",
				},
			},
			"auth": map[string]interface{}{
				"mode":   "local",
				"secret": "${PERCH_AUTH_SECRET}",
			},
			"rate_limiting": map[string]interface{}{
				"enabled": true,
				"policies": map[string]interface{}{
					"post_create": map[string]interface{}{
						"window": "30m",
						"max":    5,
					},
				},
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return nil
}

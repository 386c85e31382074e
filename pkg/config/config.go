// Copyright 2025 Kadir Pekel
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

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/QUSEIT/simacode-sub000/pkg/config/provider"
)

// Options carries the pieces of Load that vary by invocation: an explicit
// project file path (from a CLI flag) and runtime overrides (also from
// flags), the highest-precedence layer.
type Options struct {
	// ProjectFile overrides the default "./agentrun.yaml" lookup.
	ProjectFile string
	// Overrides is merged last, on top of every file and environment
	// layer — e.g. CLI flags the caller wants to win unconditionally.
	Overrides map[string]any
}

// Load assembles Config from, lowest to highest precedence: built-in
// defaults, the user file (~/.agentrun/config.yaml), the project file
// (./agentrun.yaml or opts.ProjectFile), environment variables (a loaded
// .env plus process env expanding ${VAR} references in file values), and
// finally opts.Overrides.
func Load(opts Options) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	merged := map[string]any{}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".agentrun", "config.yaml")
		if layer, err := readYAMLFile(userPath); err == nil {
			mergeMaps(merged, layer)
		}
	}

	projectPath := opts.ProjectFile
	if projectPath == "" {
		projectPath = "./agentrun.yaml"
	}
	if layer, err := readYAMLFile(projectPath); err == nil {
		mergeMaps(merged, layer)
	} else if opts.ProjectFile != "" {
		// An explicitly named project file that can't be read is a
		// ConfigError; a default path that simply doesn't exist is not.
		return nil, fmt.Errorf("config: reading %s: %w", projectPath, err)
	}

	expanded := ExpandEnvVarsInData(merged)
	mergedMap, _ := expanded.(map[string]any)
	if mergedMap == nil {
		mergedMap = map[string]any{}
	}

	if opts.Overrides != nil {
		mergeMaps(mergedMap, opts.Overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := decoder.Decode(mergedMap); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFromProvider reads raw YAML bytes from p (any provider.Provider —
// file, zookeeper, or consul) instead of the local-file layering Load
// performs, decoding it the same way. Used for the networked config
// backends.
func LoadFromProvider(ctx context.Context, p provider.Provider, opts Options) (*Config, error) {
	data, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", p.Type(), err)
	}
	expanded := ExpandEnvVarsInData(raw)
	mergedMap, _ := expanded.(map[string]any)
	if mergedMap == nil {
		mergedMap = map[string]any{}
	}
	if opts.Overrides != nil {
		mergeMaps(mergedMap, opts.Overrides)
	}

	cfg := &Config{}
	if err := mapstructure.Decode(mergedMap, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func readYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw, nil
}

// mergeMaps deep-merges src into dst, src winning on conflicts.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if srcChild, ok := v.(map[string]any); ok {
			if dstChild, ok := dst[k].(map[string]any); ok {
				mergeMaps(dstChild, srcChild)
				continue
			}
		}
		dst[k] = v
	}
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the engine's tunables from a project YAML file,
// layered over built-in defaults and environment variable overrides, in
// that precedence order (env wins, then project file, then defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project-local config file ploke-ingest looks
// for, mirroring the teacher's `.cie/project.yaml` convention.
const ConfigFileName = "project.yaml"

// ConfigDirName is the project-local directory ConfigFileName lives
// under.
const ConfigDirName = ".ploke-ingest"

// PathsConfig controls discovery's include/exclude behavior.
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// EmbeddingConfig controls which embedding provider pkg/embed talks to
// and the batch contract's shape.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`   // "nomic", "ollama", "mock"
	Model     string `yaml:"model"`
	Dims      int    `yaml:"dims"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	BatchSize int    `yaml:"batch_size"`
}

// RagConfig controls pkg/rag's fusion and HNSW parameters.
type RagConfig struct {
	RRFConstant   float64 `yaml:"rrf_constant"`
	HNSWM         int     `yaml:"hnsw_m"`
	HNSWEfSearch  int     `yaml:"hnsw_ef_search"`
	ContextBudget int     `yaml:"context_token_budget"`
}

// StoreConfig controls pkg/store's CozoDB backend.
type StoreConfig struct {
	Engine  string `yaml:"engine"` // "rocksdb", "sqlite", "mem"
	DataDir string `yaml:"data_dir"`
}

// PerformanceConfig controls the permit pools and worker counts that
// bound I/O and parsing concurrency.
type PerformanceConfig struct {
	IOFDLimit    int `yaml:"io_fd_limit"`
	ParseWorkers int `yaml:"parse_workers"`
}

// Config is the engine's full tunable surface.
type Config struct {
	Version     int               `yaml:"version"`
	Paths       PathsConfig       `yaml:"paths"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Rag         RagConfig         `yaml:"rag"`
	Store       StoreConfig       `yaml:"store"`
	Performance PerformanceConfig `yaml:"performance"`
}

// Default returns a Config populated with the engine's built-in
// defaults, before any file or environment overlay is applied.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: []string{"target/**", ".git/**", "**/*.lock"},
		},
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			Model:     "nomic-embed-text-v1.5",
			Dims:      768,
			MaxTokens: 256,
			BatchSize: 8,
		},
		Rag: RagConfig{
			RRFConstant:   60,
			HNSWM:         16,
			HNSWEfSearch:  20,
			ContextBudget: 4000,
		},
		Store: StoreConfig{
			Engine: "rocksdb",
		},
		Performance: PerformanceConfig{
			IOFDLimit:    100,
			ParseWorkers: 4,
		},
	}
}

// Load builds a Config by layering, in increasing precedence: built-in
// defaults, dir/.ploke-ingest/project.yaml if present, then
// PLOKE_INGEST_*-prefixed environment variables.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ConfigDirName, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c, leaving c's
// existing (default or previously-merged) values in place where other
// is zero-valued.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = other.Paths.Exclude
	}
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dims != 0 {
		c.Embedding.Dims = other.Embedding.Dims
	}
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.MaxTokens != 0 {
		c.Embedding.MaxTokens = other.Embedding.MaxTokens
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Rag.RRFConstant != 0 {
		c.Rag.RRFConstant = other.Rag.RRFConstant
	}
	if other.Rag.HNSWM != 0 {
		c.Rag.HNSWM = other.Rag.HNSWM
	}
	if other.Rag.HNSWEfSearch != 0 {
		c.Rag.HNSWEfSearch = other.Rag.HNSWEfSearch
	}
	if other.Rag.ContextBudget != 0 {
		c.Rag.ContextBudget = other.Rag.ContextBudget
	}
	if other.Store.Engine != "" {
		c.Store.Engine = other.Store.Engine
	}
	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}
	if other.Performance.IOFDLimit != 0 {
		c.Performance.IOFDLimit = other.Performance.IOFDLimit
	}
	if other.Performance.ParseWorkers != 0 {
		c.Performance.ParseWorkers = other.Performance.ParseWorkers
	}
}

// envOverride is one PLOKE_INGEST_*-to-field binding applied by
// applyEnvOverrides.
type envOverride struct {
	name string
	set  func(v string) error
}

func (c *Config) applyEnvOverrides() {
	overrides := []envOverride{
		{"PLOKE_INGEST_EMBEDDING_PROVIDER", func(v string) error { c.Embedding.Provider = v; return nil }},
		{"PLOKE_INGEST_EMBEDDING_MODEL", func(v string) error { c.Embedding.Model = v; return nil }},
		{"PLOKE_INGEST_EMBEDDING_BASE_URL", func(v string) error { c.Embedding.BaseURL = v; return nil }},
		{"PLOKE_INGEST_EMBEDDING_DIMS", intSetter(&c.Embedding.Dims)},
		{"PLOKE_INGEST_STORE_ENGINE", func(v string) error { c.Store.Engine = v; return nil }},
		{"PLOKE_INGEST_STORE_DATA_DIR", func(v string) error { c.Store.DataDir = v; return nil }},
		{"PLOKE_INGEST_IO_FD_LIMIT", intSetter(&c.Performance.IOFDLimit)},
		{"PLOKE_INGEST_PARSE_WORKERS", intSetter(&c.Performance.ParseWorkers)},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			_ = o.set(v)
		}
	}
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

// Validate rejects configurations that would otherwise fail confusingly
// deep inside pkg/store or pkg/embed.
func (c *Config) Validate() error {
	switch c.Store.Engine {
	case "rocksdb", "sqlite", "mem":
	default:
		return fmt.Errorf("store.engine: unknown engine %q", c.Store.Engine)
	}
	if c.Embedding.Dims <= 0 {
		return fmt.Errorf("embedding.dims: must be positive, got %d", c.Embedding.Dims)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size: must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Performance.IOFDLimit <= 0 {
		return fmt.Errorf("performance.io_fd_limit: must be positive, got %d", c.Performance.IOFDLimit)
	}
	return nil
}

// WriteYAML writes c to path, creating parent directories as needed —
// used by `ploke-ingest init` to scaffold a project config.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

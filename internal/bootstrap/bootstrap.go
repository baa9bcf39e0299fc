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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/josephleblanc/ploke-ingest/pkg/store"
)

// CrateConfig holds configuration for initializing or opening a crate's
// index.
type CrateConfig struct {
	// CrateID is the logical identifier for the crate being indexed.
	CrateID string

	// DataDir is the directory where the Store persists its files.
	// Defaults to ~/.ploke-ingest/data/<crate_id>.
	DataDir string

	// Engine is the storage backend: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb" for persistence.
	Engine string

	// EmbeddingModel and EmbeddingDimensions, when both set, cause
	// InitCrate to eagerly create the model's vector relation and an
	// HNSW index over it. Left unset, the indexer creates the vector
	// relation lazily on its first write and Rag's dense index is
	// built in-memory from it at query time.
	EmbeddingModel      string
	EmbeddingDimensions int
}

// CrateInfo holds information about an initialized crate index.
type CrateInfo struct {
	CrateID string
	DataDir string
	Engine  string
}

// InitCrate initializes a crate's local index. Idempotent: calling it
// multiple times is safe.
//
// The function:
//  1. Creates the data directory if it doesn't exist
//  2. Opens the Store with the specified engine
//  3. Creates schema relations if they don't exist
//  4. Optionally creates the configured embedding model's vector
//     relation and HNSW index
func InitCrate(config CrateConfig, logger *slog.Logger) (*CrateInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.CrateID == "" {
		return nil, fmt.Errorf("crate_id is required")
	}

	config, err := applyDefaults(config)
	if err != nil {
		return nil, err
	}

	logger.Info("bootstrap.crate.init.start",
		"crate_id", config.CrateID,
		"data_dir", config.DataDir,
		"engine", config.Engine,
	)

	s, err := store.Open(store.Config{DataDir: config.DataDir, Engine: config.Engine, CrateID: config.CrateID})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.EnsureSchema(); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	if config.EmbeddingModel != "" && config.EmbeddingDimensions > 0 {
		relation, err := s.CreateVectorRelation(config.EmbeddingModel, config.EmbeddingDimensions)
		if err != nil {
			logger.Warn("bootstrap.hnsw.warning", "err", err)
		} else if err := s.CreateHNSWIndex(relation, config.EmbeddingDimensions, 16, 64); err != nil {
			logger.Warn("bootstrap.hnsw.warning", "err", err)
			// Don't fail - HNSW is optional for basic functionality; the
			// indexer still writes vectors, just without an ANN index.
		}
	}

	logger.Info("bootstrap.crate.init.success",
		"crate_id", config.CrateID,
		"data_dir", config.DataDir,
	)

	return &CrateInfo{CrateID: config.CrateID, DataDir: config.DataDir, Engine: config.Engine}, nil
}

// OpenCrate opens an existing crate's index and returns the Store for
// querying it.
func OpenCrate(config CrateConfig, logger *slog.Logger) (*store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.CrateID == "" {
		return nil, fmt.Errorf("crate_id is required")
	}

	config, err := applyDefaults(config)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(config.DataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("crate not found: %s (run 'ploke-ingest index' first)", config.DataDir)
	}

	logger.Debug("bootstrap.crate.open",
		"crate_id", config.CrateID,
		"data_dir", config.DataDir,
	)

	s, err := store.Open(store.Config{DataDir: config.DataDir, Engine: config.Engine, CrateID: config.CrateID})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// ListCrates returns the crate IDs found under the default data
// directory.
func ListCrates() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".ploke-ingest", "data")
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No crates yet
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var crates []string
	for _, entry := range entries {
		if entry.IsDir() {
			crates = append(crates, entry.Name())
		}
	}

	return crates, nil
}

func applyDefaults(config CrateConfig) (CrateConfig, error) {
	if config.Engine == "" {
		config.Engine = "rocksdb"
	}
	if config.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return config, fmt.Errorf("get home dir: %w", err)
		}
		config.DataDir = filepath.Join(homeDir, ".ploke-ingest", "data", config.CrateID)
	}
	return config, nil
}

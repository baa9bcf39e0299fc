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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_ReturnsSaneBaseline(t *testing.T) {
	cfg := Default()
	require.Equal(t, "mock", cfg.Embedding.Provider)
	require.Equal(t, 768, cfg.Embedding.Dims)
	require.Equal(t, 8, cfg.Embedding.BatchSize)
	require.Equal(t, "rocksdb", cfg.Store.Engine)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilePresentReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default().Embedding.Model, cfg.Embedding.Model)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDirName), 0o755))
	yamlContent := "embedding:\n  provider: ollama\n  dims: 384\nstore:\n  engine: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDirName, ConfigFileName), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.Embedding.Provider)
	require.Equal(t, 384, cfg.Embedding.Dims)
	require.Equal(t, "sqlite", cfg.Store.Engine)
	// Untouched fields keep their defaults.
	require.Equal(t, 8, cfg.Embedding.BatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDirName), 0o755))
	yamlContent := "embedding:\n  provider: ollama\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDirName, ConfigFileName), []byte(yamlContent), 0o644))

	t.Setenv("PLOKE_INGEST_EMBEDDING_PROVIDER", "nomic")
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "nomic", cfg.Embedding.Provider)
}

func TestLoad_InvalidEngineFailsValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDirName), 0o755))
	yamlContent := "store:\n  engine: postgres\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDirName, ConfigFileName), []byte(yamlContent), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigDirName, ConfigFileName)
	cfg := Default()
	cfg.Embedding.Provider = "ollama"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "ollama", loaded.Embedding.Provider)
}

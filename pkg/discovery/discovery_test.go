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

package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestDiscoverWorkspace_SingleCrate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"ploke-core\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}")
	writeFile(t, filepath.Join(root, "src", "util.rs"), "pub fn g() {}")
	writeFile(t, filepath.Join(root, "target", "debug", "junk.rs"), "// build artefact")

	result, err := DiscoverWorkspace(root, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Crates, 1)

	crate := result.Crates[0]
	require.Equal(t, "ploke-core", crate.Name)
	require.Equal(t, "0.1.0", crate.Version)
	require.Len(t, crate.Files, 2)
}

func TestDiscoverWorkspace_MultiCrateWorkspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[workspace]\nmembers = [\"crates/a\", \"crates/b\"]\n")
	writeFile(t, filepath.Join(root, "crates", "a", "Cargo.toml"), "[package]\nname = \"crate-a\"\nversion = \"1.0.0\"\n")
	writeFile(t, filepath.Join(root, "crates", "a", "src", "lib.rs"), "pub fn a() {}")
	writeFile(t, filepath.Join(root, "crates", "b", "Cargo.toml"), "[package]\nname = \"crate-b\"\nversion = \"2.0.0\"\n")
	writeFile(t, filepath.Join(root, "crates", "b", "src", "lib.rs"), "pub fn b() {}")

	result, err := DiscoverWorkspace(root, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Crates, 2)

	names := map[string]string{}
	for _, c := range result.Crates {
		names[c.Name] = c.Version
	}
	require.Equal(t, "1.0.0", names["crate-a"])
	require.Equal(t, "2.0.0", names["crate-b"])
}

func TestDiscoverWorkspace_GlobMembers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[workspace]\nmembers = [\"crates/*\"]\n")
	writeFile(t, filepath.Join(root, "crates", "one", "Cargo.toml"), "[package]\nname = \"one\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "crates", "one", "src", "lib.rs"), "pub fn f() {}")
	writeFile(t, filepath.Join(root, "crates", "two", "Cargo.toml"), "[package]\nname = \"two\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "crates", "two", "src", "lib.rs"), "pub fn g() {}")

	result, err := DiscoverWorkspace(root, nil, 0)
	require.NoError(t, err)
	require.Len(t, result.Crates, 2)
}

func TestDiscoverWorkspace_ExcludesNonRustFilesAndOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"x\"\nversion = \"0.1.0\"\n")
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}")
	writeFile(t, filepath.Join(root, "src", "README.md"), "not rust")
	writeFile(t, filepath.Join(root, "src", "big.rs"), "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")

	result, err := DiscoverWorkspace(root, nil, 20)
	require.NoError(t, err)
	require.Len(t, result.Crates, 1)
	require.Len(t, result.Crates[0].Files, 1)
	require.Equal(t, 1, result.SkipReasons["too_large"])
}

func TestDiscoverWorkspace_MissingManifestErrors(t *testing.T) {
	root := t.TempDir()
	_, err := DiscoverWorkspace(root, nil, 0)
	require.Error(t, err)
}

func TestMatchesGlob_TrailingDoubleStarMatchesNestedDirs(t *testing.T) {
	require.True(t, matchesGlob("target/debug/deps/foo.rs", "target/**"))
	require.False(t, matchesGlob("src/target_info.rs", "target/**"))
}

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

package filehash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHashBytes_MatchesItself(t *testing.T) {
	data := []byte("hello\nworld\n")
	got := HashBytes(data)
	require.Equal(t, HashBytes(data), got)
}

func TestHashBytes_DifferentContentsProduceDifferentHashes(t *testing.T) {
	a := HashBytes([]byte("aaa"))
	b := HashBytes([]byte("aab"))
	require.NotEqual(t, a, b)
}

func TestHashFile_SmallFileUsesInMemoryAndMatchesHashBytes(t *testing.T) {
	data := []byte("small file content")
	path := writeTempFile(t, "small", data)

	outcome, err := HashFile(path, 1024, Skip)
	require.NoError(t, err)

	require.Equal(t, Hashed, outcome.Kind)
	require.Equal(t, int64(len(data)), outcome.SizeBytes)
	require.Equal(t, HashBytes(data), outcome.Hash)
}

func TestHashFile_LargeFileSkipReturnsSkipped(t *testing.T) {
	data := make([]byte, 4096)
	path := writeTempFile(t, "large_skip", data)

	outcome, err := HashFile(path, 1024, Skip)
	require.NoError(t, err)

	require.Equal(t, SkippedTooLarge, outcome.Kind)
	require.Equal(t, int64(len(data)), outcome.SizeBytes)
	require.Equal(t, int64(1024), outcome.MaxInMemoryBytes)
}

func TestHashFile_LargeFileStreamMatchesInMemoryReference(t *testing.T) {
	// Big enough to trip the in-memory gate, small enough to keep the test fast.
	data := make([]byte, 200_000)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, "large_stream", data)

	outcome, err := HashFile(path, 1024, Stream)
	require.NoError(t, err)

	require.Equal(t, Hashed, outcome.Kind)
	require.Equal(t, int64(len(data)), outcome.SizeBytes)
	require.Equal(t, HashBytes(data), outcome.Hash)
}

func TestHashFile_DirectoryIsNotARegularFile(t *testing.T) {
	dir := t.TempDir()

	outcome, err := HashFile(dir, 1024, Skip)
	require.NoError(t, err)
	require.Equal(t, NotARegularFile, outcome.Kind)
}

func TestHashFile_MissingFileReturnsError(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "does-not-exist"), 1024, Skip)
	require.Error(t, err)
}

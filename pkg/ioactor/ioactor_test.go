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

package ioactor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
)

func TestComputeFDLimit_BuilderOverrideWins(t *testing.T) {
	got := computeFDLimit(10000, "5", 200)
	require.Equal(t, 200, got)
}

func TestComputeFDLimit_EnvOverrideUsedWhenNoBuilderOverride(t *testing.T) {
	got := computeFDLimit(10000, "77", 0)
	require.Equal(t, 77, got)
}

func TestComputeFDLimit_HeuristicFromSoftLimit(t *testing.T) {
	got := computeFDLimit(300, "", 0)
	require.Equal(t, 100, got, "min(100, soft/3) caps at 100")
}

func TestComputeFDLimit_HeuristicBelowCap(t *testing.T) {
	got := computeFDLimit(30, "", 0)
	require.Equal(t, 10, got)
}

func TestComputeFDLimit_DefaultWhenNothingKnown(t *testing.T) {
	got := computeFDLimit(0, "", 0)
	require.Equal(t, defaultFDLimit, got)
}

func TestComputeFDLimit_ClampsToMinimum(t *testing.T) {
	got := computeFDLimit(0, "", 1)
	require.Equal(t, minFDLimit, got)
}

func TestComputeFDLimit_ClampsToMaximum(t *testing.T) {
	got := computeFDLimit(0, "", 99999)
	require.Equal(t, maxFDLimit, got)
}

func TestComputeFDLimit_InvalidEnvFallsThrough(t *testing.T) {
	got := computeFDLimit(300, "not-a-number", 0)
	require.Equal(t, 100, got)
}

func TestActor_ReadSnippets_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.rs")
	pathB := filepath.Join(dir, "b.rs")
	require.NoError(t, os.WriteFile(pathA, []byte("fn a() {}"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("fn bbbbbb() {}"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	reqs := []SnippetRequest{
		{Path: pathB, StartByte: 0, EndByte: 3},
		{Path: pathA, StartByte: 3, EndByte: 6},
	}

	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Equal(t, "fn ", string(results[0].Bytes))
	require.NoError(t, results[1].Err)
	require.Equal(t, "a()", string(results[1].Bytes))
}

func TestActor_ReadSnippets_MissingFileReportsError(t *testing.T) {
	actor := New(Config{FDLimitOverride: 4})
	reqs := []SnippetRequest{{Path: filepath.Join(t.TempDir(), "missing.rs"), StartByte: 0, EndByte: 1}}

	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestActor_ReadSnippets_RespectsCancelledContext(t *testing.T) {
	actor := New(Config{FDLimitOverride: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := []SnippetRequest{{Path: "irrelevant", StartByte: 0, EndByte: 1}}
	results := actor.ReadSnippets(ctx, reqs)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestActor_ReadSnippets_VerifiesExpectedHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	content := []byte("fn a() {}")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	actor := New(Config{FDLimitOverride: 4})
	reqs := []SnippetRequest{{Path: path, StartByte: 0, EndByte: 2, ExpectedHash: filehash.HashBytes(content)}}

	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, "fn", string(results[0].Bytes))
}

func TestActor_ReadSnippets_ReportsFileChangedOnHashMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	reqs := []SnippetRequest{{Path: path, StartByte: 0, EndByte: 2, ExpectedHash: filehash.HashBytes([]byte("stale content"))}}

	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, ErrFileChanged)
}

func TestActor_UpdateRoots_RejectsPathOutsideRoots(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}"), 0o644))
	outsidePath := filepath.Join(outside, "b.rs")
	require.NoError(t, os.WriteFile(outsidePath, []byte("fn b() {}"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	require.NoError(t, actor.UpdateRoots([]string{dir}, SymlinkPolicyFollow))

	reqs := []SnippetRequest{
		{Path: path, StartByte: 0, EndByte: 2},
		{Path: outsidePath, StartByte: 0, EndByte: 2},
	}
	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, ErrPathNotAllowed)
}

func TestActor_UpdateRoots_DenyPolicyRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.rs")
	require.NoError(t, os.WriteFile(real, []byte("fn a() {}"), 0o644))
	link := filepath.Join(dir, "link.rs")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	actor := New(Config{FDLimitOverride: 4})
	require.NoError(t, actor.UpdateRoots([]string{dir}, SymlinkPolicyDeny))

	reqs := []SnippetRequest{{Path: link, StartByte: 0, EndByte: 2}}
	results := actor.ReadSnippets(context.Background(), reqs)
	require.Len(t, results, 1)
	require.True(t, errors.Is(results[0].Err, ErrPathNotAllowed))
}

func TestActor_UpdateRoots_EmptyRootsDisablesPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	require.NoError(t, actor.UpdateRoots([]string{dir}, SymlinkPolicyFollow))
	require.NoError(t, actor.UpdateRoots(nil, SymlinkPolicyFollow))

	results := actor.ReadSnippets(context.Background(), []SnippetRequest{{Path: path, StartByte: 0, EndByte: 2}})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
}

func TestActor_ScanForChanges_DetectsHashMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.rs")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	known := map[string][32]byte{path: {1}}
	hashFn := func(p string) ([32]byte, error) { return [32]byte{9}, nil }

	changed, err := actor.ScanForChanges(context.Background(), []string{path}, known, hashFn)
	require.NoError(t, err)
	require.Equal(t, []string{path}, changed)
}

func TestActor_ScanForChanges_NoChangeWhenHashMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.rs")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	actor := New(Config{FDLimitOverride: 4})
	fixed := [32]byte{7}
	known := map[string][32]byte{path: fixed}
	hashFn := func(p string) ([32]byte, error) { return fixed, nil }

	changed, err := actor.ScanForChanges(context.Background(), []string{path}, known, hashFn)
	require.NoError(t, err)
	require.Empty(t, changed)
}

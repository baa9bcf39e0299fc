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

package rag

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/embed"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/ioactor"
)

// fakeCatalog serves a fixed node set with deterministic hash-based
// vectors, avoiding any Store/CozoDB dependency in this package's tests.
type fakeCatalog struct {
	nodes   []NodeMeta
	vectors map[string][]float32
}

func (c *fakeCatalog) AllNodes(ctx context.Context) ([]NodeMeta, error) {
	return c.nodes, nil
}

func (c *fakeCatalog) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	v, ok := c.vectors[id]
	return v, ok, nil
}

func writeSourceFile(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/lib.rs"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestService_SearchAndAssembleContext(t *testing.T) {
	ctx := context.Background()
	path := writeSourceFile(t, "fn parse_module_tree() {}\nfn read_snippet() {}\n")

	embedder := embed.NewMockEmbedder(8)
	vec1, err := embedder.Embed(ctx, []string{"parse_module_tree walks the module graph"})
	require.NoError(t, err)
	vec2, err := embedder.Embed(ctx, []string{"read_snippet reads a byte range"})
	require.NoError(t, err)

	catalog := &fakeCatalog{
		nodes: []NodeMeta{
			{ID: "n1", Kind: graph.KindFunction, Name: "parse_module_tree", Docstring: "walks the module graph", FilePath: path, Span: graph.Span{StartByte: 0, EndByte: 25}},
			{ID: "n2", Kind: graph.KindFunction, Name: "read_snippet", Docstring: "reads a byte range", FilePath: path, Span: graph.Span{StartByte: 26, EndByte: 47}},
		},
		vectors: map[string][]float32{
			"n1": vec1[0],
			"n2": vec2[0],
		},
	}

	svc, err := NewService(ctx, Config{
		Catalog:  catalog,
		Embedder: embedder,
		IO:       ioactor.New(ioactor.Config{FDLimitOverride: 4}),
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, "module tree", SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assembled, err := svc.AssembleContext(ctx, results, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, assembled.Parts)
	require.LessOrEqual(t, assembled.TokensUsed, assembled.TokensBudget)
	require.Equal(t, path, assembled.Parts[0].FilePath)
}

func TestService_AssembleContext_StopsAtBudget(t *testing.T) {
	ctx := context.Background()
	path := writeSourceFile(t, "aaaa bbbb cccc dddd eeee ffff gggg")

	catalog := &fakeCatalog{
		nodes: []NodeMeta{
			{ID: "n1", FilePath: path, Span: graph.Span{StartByte: 0, EndByte: 34}},
		},
	}
	svc, err := NewService(ctx, Config{
		Catalog:  catalog,
		Embedder: embed.NewMockEmbedder(4),
		IO:       ioactor.New(ioactor.Config{FDLimitOverride: 4}),
	})
	require.NoError(t, err)

	out, err := svc.AssembleContext(ctx, []ScoredID{{ID: "n1", Score: 1}}, 2)
	require.NoError(t, err)
	require.Empty(t, out.Parts)
	require.Equal(t, 1, out.Considered)
	require.Equal(t, 0, out.Included)
}

func TestService_Search_EmptyCatalogReturnsNoResults(t *testing.T) {
	ctx := context.Background()
	catalog := &fakeCatalog{}
	svc, err := NewService(ctx, Config{
		Catalog:  catalog,
		Embedder: embed.NewMockEmbedder(4),
		IO:       ioactor.New(ioactor.Config{FDLimitOverride: 4}),
	})
	require.NoError(t, err)

	results, err := svc.Search(ctx, "anything", SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, results)
}

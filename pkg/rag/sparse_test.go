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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSparseIndex_FindsMatchByName(t *testing.T) {
	idx, err := NewSparseIndex()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index("n1", "parseModuleTree", "walks the module graph", ""))
	require.NoError(t, idx.Index("n2", "readSnippet", "reads a byte range from disk", ""))

	hits, err := idx.Search(context.Background(), "module tree", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "n1", hits[0].ID)
}

func TestSparseIndex_EmptyQueryReturnsNoHits(t *testing.T) {
	idx, err := NewSparseIndex()
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Index("n1", "foo", "", ""))

	hits, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestTokenizeCode_SplitsCamelAndSnakeCase(t *testing.T) {
	tokens := tokenizeCode("parseModuleTree read_snippet HTTPHandler")
	require.Contains(t, tokens, "parse")
	require.Contains(t, tokens, "module")
	require.Contains(t, tokens, "tree")
	require.Contains(t, tokens, "read")
	require.Contains(t, tokens, "snippet")
	require.Contains(t, tokens, "http")
	require.Contains(t, tokens, "handler")
}

func TestTokenizeCode_DropsShortTokens(t *testing.T) {
	tokens := tokenizeCode("a bb ccc")
	require.NotContains(t, tokens, "a")
	require.Contains(t, tokens, "bb")
	require.Contains(t, tokens, "ccc")
}

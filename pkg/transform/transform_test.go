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

package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/parse"
)

var testNS = uuid.MustParse("99999999-8888-7777-6666-555555555555")

func TestTransformer_StatementsEmitsOneRowPerNode(t *testing.T) {
	p := parse.New(nil)
	g, err := p.ParseFile(context.Background(), testNS, "lib.rs", []byte(`pub struct Point { x: f64, y: f64 }

pub fn origin() -> Point { Point { x: 0.0, y: 0.0 } }
`))
	require.NoError(t, err)

	tr := New()
	hash := filehash.HashBytes([]byte("lib.rs contents"))
	stmts := tr.Statements(g, nil, hash)
	require.NotEmpty(t, stmts)

	var sawStruct, sawFunction bool
	for _, s := range stmts {
		if strings.HasPrefix(s, ":put struct") {
			sawStruct = true
			require.Contains(t, s, hash.String())
		}
		if strings.HasPrefix(s, ":put function") {
			sawFunction = true
			require.Contains(t, s, hash.String())
		}
	}
	require.True(t, sawStruct)
	require.True(t, sawFunction)
}

func TestTransformer_StatementsOmitsFileHashWhenZero(t *testing.T) {
	p := parse.New(nil)
	g, err := p.ParseFile(context.Background(), testNS, "lib.rs", []byte(`pub struct Point { x: f64, y: f64 }`))
	require.NoError(t, err)

	tr := New()
	stmts := tr.Statements(g, nil, filehash.Size{})
	require.NotEmpty(t, stmts)

	for _, s := range stmts {
		if strings.HasPrefix(s, ":put struct") {
			require.Contains(t, s, "file_hash: null")
		}
	}
}

func TestTransformer_EdgesIncludeExtraReExports(t *testing.T) {
	p := parse.New(nil)
	g, err := p.ParseFile(context.Background(), testNS, "lib.rs", []byte(`pub fn f() {}`))
	require.NoError(t, err)

	require.NotEmpty(t, g.Edges)

	tr := New()
	extra := []graph.SyntacticRelation{{Source: g.Edges[0].Source, Target: g.Edges[0].Target, Kind: graph.RelReExports}}
	stmts := tr.Statements(g, extra, filehash.Size{})

	var edgeCount int
	for _, s := range stmts {
		if strings.HasPrefix(s, ":put syntax_edge") {
			edgeCount++
		}
	}
	require.Equal(t, len(g.Edges)+len(extra), edgeCount)
}

func TestBatcher_SplitsOnTargetMutations(t *testing.T) {
	b := NewBatcher(2, 0)
	stmts := []string{":put a {x:1}", ":put b {x:1}", ":put c {x:1}"}

	batches, err := b.Batch(stmts)
	require.NoError(t, err)
	require.Len(t, batches, 2)
}

func TestBatcher_SplitsOnByteSize(t *testing.T) {
	b := NewBatcher(0, 20)
	stmts := []string{":put a {x:1}", ":put b {x:1}", ":put c {x:1}"}

	batches, err := b.Batch(stmts)
	require.NoError(t, err)
	require.True(t, len(batches) >= 2)
}

func TestBatcher_OversizeStatementErrors(t *testing.T) {
	b := NewBatcher(0, 5)
	_, err := b.Batch([]string{":put a {x:1}"})
	require.Error(t, err)
}

func TestBatcher_EmptyInputReturnsNoBatches(t *testing.T) {
	b := NewBatcher(10, 0)
	batches, err := b.Batch(nil)
	require.NoError(t, err)
	require.Empty(t, batches)
}

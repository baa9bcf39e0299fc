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

package moduletree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/parse"
)

var crateNS = uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

func findFunctionAny(g *graph.PartialGraph, name string) *graph.Function {
	for _, fn := range g.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func findImportAny(g *graph.PartialGraph, visibleName string) *graph.Import {
	for _, imp := range g.Imports {
		if imp.VisibleName == visibleName {
			return imp
		}
	}
	return nil
}

func parseCrate(t *testing.T) (lib, foo *graph.PartialGraph) {
	t.Helper()
	p := parse.New(nil)

	libSrc := `pub mod foo;
pub use foo::bar as baz;
`
	fooSrc := `pub fn bar() {}
`
	var err error
	lib, err = p.ParseFile(context.Background(), crateNS, "/crate/src/lib.rs", []byte(libSrc))
	require.NoError(t, err)
	foo, err = p.ParseFile(context.Background(), crateNS, "/crate/src/foo.rs", []byte(fooSrc))
	require.NoError(t, err)
	return lib, foo
}

func TestTree_LinkDeclarationsResolvesModDeclaration(t *testing.T) {
	lib, foo := parseCrate(t)
	tree := New()
	require.Empty(t, tree.AddGraph(lib))
	require.Empty(t, tree.AddGraph(foo))

	errs := tree.LinkDeclarations()
	require.Empty(t, errs)

	var declMod *graph.Module
	for _, m := range tree.modulesByID {
		if m.Variant == graph.ModuleDeclaration {
			declMod = m
		}
	}
	require.NotNil(t, declMod)
	require.NotNil(t, declMod.ResolvedDefinition)

	fooRoot, ok := tree.Module(declMod.ResolvedDefinition.UUID)
	require.True(t, ok)
	require.Equal(t, graph.ModuleFileBased, fooRoot.Variant)
}

func TestTree_BuildPathIndexAssignsCanonicalPaths(t *testing.T) {
	lib, foo := parseCrate(t)
	tree := New()
	tree.AddGraph(lib)
	tree.AddGraph(foo)
	require.Empty(t, tree.LinkDeclarations())
	errs := tree.BuildPathIndex()
	require.Empty(t, errs)

	barFn := findFunctionAny(foo, "bar")
	require.NotNil(t, barFn)
	key := "crate::foo::bar"
	any, ok := tree.itemPathIndex[key]
	require.True(t, ok)
	require.Equal(t, barFn.Id.UUID, any.UUID)
}

func TestTree_ResolveReExportChainsFollowsPubUse(t *testing.T) {
	lib, foo := parseCrate(t)
	tree := New()
	tree.AddGraph(lib)
	tree.AddGraph(foo)
	require.Empty(t, tree.LinkDeclarations())
	require.Empty(t, tree.BuildPathIndex())

	edges, errs := tree.ResolveReExportChains()
	require.Empty(t, errs)
	require.Len(t, edges, 1)

	baz := findImportAny(lib, "baz")
	require.NotNil(t, baz)
	barFn := findFunctionAny(foo, "bar")
	require.NotNil(t, barFn)

	require.Equal(t, baz.Id, edges[0].Source)
	require.Equal(t, barFn.Id.UUID, edges[0].Target.UUID)
	require.Equal(t, graph.RelReExports, edges[0].Kind)
}

func TestTree_ShortestPublicPathReachesNestedPublicFunction(t *testing.T) {
	lib, foo := parseCrate(t)
	tree := New()
	tree.AddGraph(lib)
	tree.AddGraph(foo)
	require.Empty(t, tree.LinkDeclarations())
	require.Empty(t, tree.BuildPathIndex())

	barFn := findFunctionAny(foo, "bar")
	require.NotNil(t, barFn)

	path, err := tree.ShortestPublicPath(barFn.Id)
	require.NoError(t, err)
	require.Equal(t, []string{"crate", "foo", "bar"}, path)
}

func TestTree_ResolveReExportChainsRejectsCycle(t *testing.T) {
	tree := New()
	aID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	bID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	tree.importsByID[aID] = &graph.Import{
		Node:        graph.Node{Id: graph.AnyNodeId{Kind: graph.KindImport, UUID: aID}, Visibility: graph.Visibility{Kind: graph.VisPublic}},
		ImportKind:  graph.ImportUseStatement,
		SourcePath:  []string{"b"},
		VisibleName: "a",
	}
	tree.importsByID[bID] = &graph.Import{
		Node:        graph.Node{Id: graph.AnyNodeId{Kind: graph.KindImport, UUID: bID}, Visibility: graph.Visibility{Kind: graph.VisPublic}},
		ImportKind:  graph.ImportUseStatement,
		SourcePath:  []string{"a"},
		VisibleName: "b",
	}
	tree.itemPathIndex["crate::b"] = graph.AnyNodeId{Kind: graph.KindImport, UUID: bID}
	tree.itemPathIndex["crate::a"] = graph.AnyNodeId{Kind: graph.KindImport, UUID: aID}

	_, errs := tree.ResolveReExportChains()
	require.NotEmpty(t, errs)
	re, ok := errs[0].(*ResolutionError)
	require.True(t, ok)
	require.Equal(t, ErrConflictingReExportPath, re.Kind)
}

// buildReExportChain wires hops consecutive `pub use` imports
// n1 -> n2 -> ... -> n(hops), with n(hops) resolving to a non-import
// function node, and returns the id/kind to start following from.
func buildReExportChain(hops int) (*Tree, uuid.UUID, graph.NodeKind) {
	tree := New()
	ids := make([]uuid.UUID, hops+1)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for i := 0; i < hops; i++ {
		sourcePath := []string{"crate", fmt.Sprintf("n%d", i+1)}
		tree.importsByID[ids[i]] = &graph.Import{
			Node:        graph.Node{Id: graph.AnyNodeId{Kind: graph.KindImport, UUID: ids[i]}, Visibility: graph.Visibility{Kind: graph.VisPublic}},
			ImportKind:  graph.ImportUseStatement,
			SourcePath:  sourcePath,
			VisibleName: fmt.Sprintf("n%d", i),
		}
		target := graph.AnyNodeId{Kind: graph.KindImport, UUID: ids[i+1]}
		if i == hops-1 {
			target = graph.AnyNodeId{Kind: graph.KindFunction, UUID: ids[i+1]}
		}
		tree.itemPathIndex[fmt.Sprintf("crate::n%d", i+1)] = target
	}
	return tree, ids[0], graph.KindImport
}

func TestTree_FollowReExportChainDepthBoundary(t *testing.T) {
	tree, startID, startKind := buildReExportChain(maxReExportDepth)
	finalID, finalKind, err := tree.followReExportChain(startID, startKind)
	require.NoError(t, err)
	require.Equal(t, graph.KindFunction, finalKind)
	require.NotEqual(t, uuid.Nil, finalID)
}

func TestTree_FollowReExportChainRejectsOverLongChain(t *testing.T) {
	tree, startID, startKind := buildReExportChain(maxReExportDepth + 1)
	_, _, err := tree.followReExportChain(startID, startKind)
	require.Error(t, err)

	var tooLong *ChainTooLongError
	require.True(t, errors.As(err, &tooLong))
	require.Equal(t, maxReExportDepth, tooLong.Depth)
}

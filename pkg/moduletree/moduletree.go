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

// Package moduletree merges the per-file partial graphs produced by
// package parse into one crate-wide index: a canonical path for every
// module, resolved Declaration -> FileBased links (honouring
// #[path = "..."]), forward/reverse adjacency for O(1) traversal, a
// shortest-public-path query, and a bounded re-export chain resolver.
package moduletree

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
)

// maxReExportDepth is the policy-fixed bound on `pub use` chain length; a
// chain of exactly this many re-export hops still resolves, chains longer
// than this are rejected as ChainTooLong rather than followed indefinitely.
const maxReExportDepth = 32

type edgeKey struct {
	source uuid.UUID
	target uuid.UUID
	kind   graph.RelationKind
}

// Tree is the merged, crate-scoped view built from one or more
// PartialGraph values belonging to the same crate namespace.
type Tree struct {
	modulesByID map[uuid.UUID]*graph.Module
	importsByID map[uuid.UUID]*graph.Import

	nodeName       map[uuid.UUID]string
	nodeVisibility map[uuid.UUID]graph.Visibility
	nodeKind       map[uuid.UUID]graph.NodeKind

	fwd map[uuid.UUID][]graph.SyntacticRelation
	rev map[uuid.UUID][]graph.SyntacticRelation
	seenEdges map[edgeKey]bool

	// fileRoots maps a normalized absolute file path to the id of the
	// FileBased Module node produced by parsing that file.
	fileRoots map[string]uuid.UUID

	// pathIndex maps a canonical "::"-joined module path to its Module
	// id. itemPathIndex does the same for every primary item kind, used
	// to resolve `use` source paths during re-export chasing.
	pathIndex     map[string]uuid.UUID
	itemPathIndex map[string]graph.AnyNodeId

	crateRoots []uuid.UUID
}

// New builds an empty Tree ready to receive partial graphs via AddGraph.
func New() *Tree {
	return &Tree{
		modulesByID:    make(map[uuid.UUID]*graph.Module),
		importsByID:    make(map[uuid.UUID]*graph.Import),
		nodeName:       make(map[uuid.UUID]string),
		nodeVisibility: make(map[uuid.UUID]graph.Visibility),
		nodeKind:       make(map[uuid.UUID]graph.NodeKind),
		fwd:            make(map[uuid.UUID][]graph.SyntacticRelation),
		rev:            make(map[uuid.UUID][]graph.SyntacticRelation),
		seenEdges:      make(map[edgeKey]bool),
		fileRoots:      make(map[string]uuid.UUID),
		pathIndex:      make(map[string]uuid.UUID),
		itemPathIndex:  make(map[string]graph.AnyNodeId),
	}
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// AddGraph merges one file's PartialGraph into the tree: every node's
// name/visibility/kind, every FileBased root, and every edge. Duplicate
// Contains edges are dropped and reported; every other collected node is
// trusted since SynIdentifier collisions across files are the parser's
// concern, not the tree's.
func (t *Tree) AddGraph(g *graph.PartialGraph) []error {
	var errs []error

	for _, m := range g.Modules {
		if existing, ok := t.modulesByID[m.Id.UUID]; ok && existing != m {
			errs = append(errs, newErr(ErrDuplicateModuleId, "%s", m.Id.UUID))
		}
		t.modulesByID[m.Id.UUID] = m
		t.registerNode(m.Id.UUID, m.Name, m.Visibility, graph.KindModule)

		if m.Variant == graph.ModuleFileBased {
			key := normalizePath(m.FilePath)
			if _, ok := t.fileRoots[key]; ok && key != "" {
				errs = append(errs, newErr(ErrDuplicatePath, "file root already registered: %s", key))
			}
			t.fileRoots[key] = m.Id.UUID
			t.crateRoots = append(t.crateRoots, m.Id.UUID)
		}
	}

	for _, fn := range g.Functions {
		t.registerNode(fn.Id.UUID, fn.Name, fn.Visibility, fn.Id.Kind)
	}
	for _, s := range g.Structs {
		t.registerNode(s.Id.UUID, s.Name, s.Visibility, graph.KindStruct)
	}
	for _, e := range g.Enums {
		t.registerNode(e.Id.UUID, e.Name, e.Visibility, graph.KindEnum)
	}
	for _, u := range g.Unions {
		t.registerNode(u.Id.UUID, u.Name, u.Visibility, graph.KindUnion)
	}
	for _, a := range g.Aliases {
		t.registerNode(a.Id.UUID, a.Name, a.Visibility, graph.KindTypeAlias)
	}
	for _, tr := range g.Traits {
		t.registerNode(tr.Id.UUID, tr.Name, tr.Visibility, graph.KindTrait)
	}
	for _, im := range g.Impls {
		t.registerNode(im.Id.UUID, im.Name, im.Visibility, graph.KindImpl)
	}
	for _, c := range g.Consts {
		t.registerNode(c.Id.UUID, c.Name, c.Visibility, graph.KindConst)
	}
	for _, s := range g.Statics {
		t.registerNode(s.Id.UUID, s.Name, s.Visibility, graph.KindStatic)
	}
	for _, mac := range g.Macros {
		t.registerNode(mac.Id.UUID, mac.Name, mac.Visibility, graph.KindMacro)
	}
	for _, imp := range g.Imports {
		t.importsByID[imp.Id.UUID] = imp
		t.registerNode(imp.Id.UUID, imp.VisibleName, imp.Visibility, graph.KindImport)
	}

	for _, e := range g.Edges {
		key := edgeKey{source: e.Source.UUID, target: e.Target.UUID, kind: e.Kind}
		if t.seenEdges[key] {
			if e.Kind == graph.RelContains {
				errs = append(errs, newErr(ErrDuplicateContains, "%s -> %s", e.Source, e.Target))
			}
			continue
		}
		t.seenEdges[key] = true
		t.fwd[e.Source.UUID] = append(t.fwd[e.Source.UUID], e)
		t.rev[e.Target.UUID] = append(t.rev[e.Target.UUID], e)
	}

	return errs
}

func (t *Tree) registerNode(id uuid.UUID, name string, vis graph.Visibility, kind graph.NodeKind) {
	t.nodeName[id] = name
	t.nodeVisibility[id] = vis
	t.nodeKind[id] = kind
}

// LinkDeclarations resolves every Declaration-variant module (`mod foo;`)
// to the FileBased root of the file it names, honouring an explicit
// #[path = "..."] override and falling back to the conventional
// foo.rs / foo/mod.rs siblings of the declaring file.
func (t *Tree) LinkDeclarations() []error {
	var errs []error
	for id, mod := range t.modulesByID {
		if mod.Variant != graph.ModuleDeclaration {
			continue
		}
		dir := filepath.Dir(mod.FilePath)
		if dir == "" || dir == "." {
			errs = append(errs, newErr(ErrFilePathMissingParent, "%s", mod.FilePath))
			continue
		}

		candidates := candidatePaths(dir, mod.Name, mod.PathAttr)
		var resolved uuid.UUID
		for _, c := range candidates {
			if rootID, ok := t.fileRoots[normalizePath(c)]; ok {
				resolved = rootID
				break
			}
		}
		if resolved == uuid.Nil {
			errs = append(errs, newErr(ErrModuleDefinitionNotFound, "mod %s declared in %s", mod.Name, mod.FilePath))
			continue
		}

		target := graph.AnyNodeId{Kind: graph.KindModule, UUID: resolved}
		mod.ResolvedDefinition = &target
		t.addEdge(graph.SyntacticRelation{
			Source: graph.AnyNodeId{Kind: graph.KindModule, UUID: id},
			Target: target,
			Kind:   graph.RelModuleDeclarationResolvesToDefinition,
		})
	}
	return errs
}

func candidatePaths(dir, name, pathAttr string) []string {
	if pathAttr != "" {
		if v := extractPathAttrValue(pathAttr); v != "" {
			return []string{filepath.Join(dir, v)}
		}
	}
	return []string{
		filepath.Join(dir, name+".rs"),
		filepath.Join(dir, name, "mod.rs"),
	}
}

func extractPathAttrValue(attr string) string {
	i := strings.Index(attr, "\"")
	if i < 0 {
		return ""
	}
	rest := attr[i+1:]
	j := strings.Index(rest, "\"")
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func (t *Tree) addEdge(e graph.SyntacticRelation) {
	key := edgeKey{source: e.Source.UUID, target: e.Target.UUID, kind: e.Kind}
	if t.seenEdges[key] {
		return
	}
	t.seenEdges[key] = true
	t.fwd[e.Source.UUID] = append(t.fwd[e.Source.UUID], e)
	t.rev[e.Target.UUID] = append(t.rev[e.Target.UUID], e)
}

// BuildPathIndex assigns every module a canonical ["crate", ...] path by
// walking Contains edges from each crate root (a FileBased module with
// no incoming ModuleDeclarationResolvesToDefinition edge), continuing
// transparently across a Declaration -> FileBased link so a `mod foo;`
// in lib.rs and foo.rs's own items share one contiguous path.
func (t *Tree) BuildPathIndex() []error {
	var errs []error
	roots := t.findTrueCrateRoots()
	if len(roots) == 0 {
		return []error{newErr(ErrRootModuleNotFound, "no unlinked FileBased module found")}
	}

	visited := make(map[uuid.UUID]bool)
	for _, root := range roots {
		errs = append(errs, t.walkPath(root, []string{"crate"}, visited)...)
	}
	return errs
}

func (t *Tree) findTrueCrateRoots() []uuid.UUID {
	var roots []uuid.UUID
	for _, id := range t.crateRoots {
		isDeclTarget := false
		for _, e := range t.rev[id] {
			if e.Kind == graph.RelModuleDeclarationResolvesToDefinition {
				isDeclTarget = true
				break
			}
		}
		if !isDeclTarget {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })
	return roots
}

func (t *Tree) walkPath(id uuid.UUID, path []string, visited map[uuid.UUID]bool) []error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	var errs []error
	key := strings.Join(path, "::")
	// A Declaration-variant module shares its canonical path with the
	// FileBased module it resolves to; only the latter owns a pathIndex
	// entry, so the two don't collide as a spurious DuplicatePath.
	if mod, ok := t.modulesByID[id]; ok && mod.Variant != graph.ModuleDeclaration {
		if existing, ok := t.pathIndex[key]; ok && existing != id {
			errs = append(errs, newErr(ErrDuplicatePath, "%s", key))
		} else {
			t.pathIndex[key] = id
		}
	}
	t.itemPathIndex[key] = graph.AnyNodeId{Kind: t.nodeKind[id], UUID: id}

	for _, e := range t.fwd[id] {
		switch e.Kind {
		case graph.RelContains:
			childName := t.nodeName[e.Target.UUID]
			childPath := append(append([]string{}, path...), childName)
			errs = append(errs, t.walkPath(e.Target.UUID, childPath, visited)...)
		case graph.RelModuleDeclarationResolvesToDefinition:
			errs = append(errs, t.walkPath(e.Target.UUID, path, visited)...)
		}
	}
	return errs
}

// ShortestPublicPath returns the shortest module-segment path from the
// crate root to id using only Contains/declaration-link edges whose
// target is syntactically public (or crate-visible, since SPP is scoped
// to one crate). It follows ReExports edges only when they are already
// in the tree (added through AddGraph); the edges that
// ResolveReExportChains returns are not added to the tree, so pub-use
// chains resolved there are not followed here. Among paths of equal
// length, the first one reached in edge insertion order is returned;
// names are not compared. cfg predicates are never evaluated: an item
// behind disjoint cfg variants is reachable if any variant's chain is
// all-public.
func (t *Tree) ShortestPublicPath(id graph.AnyNodeId) ([]string, error) {
	roots := t.findTrueCrateRoots()
	if len(roots) == 0 {
		return nil, newErr(ErrRootModuleNotFound, "no crate root")
	}

	type queued struct {
		id   uuid.UUID
		path []string
	}
	visited := map[uuid.UUID]bool{}
	var queue []queued
	for _, r := range roots {
		if !visited[r] {
			visited[r] = true
			queue = append(queue, queued{id: r, path: []string{"crate"}})
		}
	}

	foundPrivate := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.id == id.UUID {
			return cur.path, nil
		}
		for _, e := range t.fwd[cur.id] {
			switch e.Kind {
			case graph.RelContains, graph.RelReExports, graph.RelModuleDeclarationResolvesToDefinition:
			default:
				continue
			}
			if visited[e.Target.UUID] {
				continue
			}
			vis := t.nodeVisibility[e.Target.UUID]
			if vis.Kind != graph.VisPublic && vis.Kind != graph.VisCrate && e.Kind != graph.RelModuleDeclarationResolvesToDefinition {
				if e.Target.UUID == id.UUID {
					foundPrivate = true
				}
				continue
			}
			visited[e.Target.UUID] = true
			var nextPath []string
			if e.Kind == graph.RelModuleDeclarationResolvesToDefinition {
				nextPath = cur.path
			} else {
				name := t.nodeName[e.Target.UUID]
				nextPath = append(append([]string{}, cur.path...), name)
			}
			queue = append(queue, queued{id: e.Target.UUID, path: nextPath})
		}
	}

	if foundPrivate {
		return nil, newErr(ErrItemNotPubliclyAccessible, "%s", id)
	}
	return nil, newErr(ErrModuleDefinitionNotFound, "%s unreachable from crate root", id)
}

// ResolveReExportChains walks every public `use` import and follows
// chained re-exports (a `pub use` of another `pub use`) up to
// maxReExportDepth, emitting one ReExports edge per chain recording its
// ultimate target. Globs and self-imports are not chased since they
// don't name a single re-exported item.
func (t *Tree) ResolveReExportChains() ([]graph.SyntacticRelation, []error) {
	var edges []graph.SyntacticRelation
	var errs []error

	ids := make([]uuid.UUID, 0, len(t.importsByID))
	for id := range t.importsByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		imp := t.importsByID[id]
		if imp.Visibility.Kind != graph.VisPublic || imp.ImportKind != graph.ImportUseStatement {
			continue
		}
		if imp.IsGlob || imp.IsSelfImport {
			continue
		}

		startID, startKind, ok := t.lookupItemPath(imp.SourcePath)
		if !ok {
			errs = append(errs, newErr(ErrUnresolvedReExportTarget, "%s", strings.Join(imp.SourcePath, "::")))
			continue
		}

		finalID, finalKind, err := t.followReExportChain(startID, startKind)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		edges = append(edges, graph.SyntacticRelation{
			Source: imp.Id,
			Target: graph.AnyNodeId{Kind: finalKind, UUID: finalID},
			Kind:   graph.RelReExports,
		})
	}

	return edges, errs
}

func (t *Tree) lookupItemPath(sourcePath []string) (uuid.UUID, graph.NodeKind, bool) {
	key := strings.Join(sourcePath, "::")
	if any, ok := t.itemPathIndex[key]; ok {
		return any.UUID, any.Kind, true
	}
	// The leading "crate"/"self"/"super" segment may be absent from the
	// recorded path index (built starting at "crate"); retry with it
	// prefixed, the common case for a bare `use foo::bar;` at crate root.
	if len(sourcePath) > 0 && sourcePath[0] != "crate" {
		withCrate := append([]string{"crate"}, sourcePath...)
		if any, ok := t.itemPathIndex[strings.Join(withCrate, "::")]; ok {
			return any.UUID, any.Kind, true
		}
	}
	return uuid.Nil, 0, false
}

func (t *Tree) followReExportChain(startID uuid.UUID, startKind graph.NodeKind) (uuid.UUID, graph.NodeKind, error) {
	visited := map[uuid.UUID]bool{startID: true}
	cur, curKind := startID, startKind

	// depth <= maxReExportDepth, not <, so a chain of exactly
	// maxReExportDepth follows still gets its terminal node checked: the
	// loop body both checks cur and (if it's an import) follows it in the
	// same iteration, so checking the Nth follow's result needs N+1
	// iterations, not N.
	for depth := 0; depth <= maxReExportDepth; depth++ {
		nextImp, ok := t.importsByID[cur]
		if !ok || nextImp.Visibility.Kind != graph.VisPublic || nextImp.IsGlob {
			return cur, curKind, nil
		}
		nextID, nextKind, ok := t.lookupItemPath(nextImp.SourcePath)
		if !ok {
			return uuid.Nil, 0, newErr(ErrUnresolvedReExportTarget, "%s", strings.Join(nextImp.SourcePath, "::"))
		}
		if visited[nextID] {
			return uuid.Nil, 0, newErr(ErrConflictingReExportPath, "cycle through %s", nextID)
		}
		visited[nextID] = true
		cur, curKind = nextID, nextKind
	}
	return uuid.Nil, 0, &ChainTooLongError{Depth: maxReExportDepth}
}

// Module looks up a merged Module node by id, for callers (the
// Transformer) that need the resolved ResolvedDefinition/Items fields
// after BuildPathIndex and LinkDeclarations have run.
func (t *Tree) Module(id uuid.UUID) (*graph.Module, bool) {
	m, ok := t.modulesByID[id]
	return m, ok
}

// Stats reports index sizes for diagnostics/logging.
func (t *Tree) Stats() (modules, imports, edges int) {
	return len(t.modulesByID), len(t.importsByID), len(t.seenEdges)
}

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

// Package transform serialises a resolved crate graph into Datalog `:put`
// upsert statements, one per node or edge row, and splits the resulting
// script into batches that respect a byte budget. It never talks to the
// Store directly; callers hand the returned scripts to pkg/store.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
)

// DefaultSoftLimitBytes bounds a single batch script; overridable via
// env CIE_SOFT_LIMIT_BYTES, matching the rest of the pipeline's
// soft-limit convention.
const DefaultSoftLimitBytes = 64 << 20

// Transformer walks a PartialGraph (after moduletree resolution has
// populated Module.ResolvedDefinition and emitted ReExports edges) and
// produces one `:put` statement per row.
type Transformer struct{}

// New returns a ready Transformer; it carries no state between calls.
func New() *Transformer { return &Transformer{} }

// Statements serialises every node and edge in g into individual `:put`
// statements, one row per relation, ready for Batch. fileHash, when
// non-zero, is stamped onto every node row as file_hash: the whole-file
// content hash recorded at ingestion time, later compared against the
// IoActor's ExpectedHash to detect a file changed since it was indexed.
func (tr *Transformer) Statements(g *graph.PartialGraph, extraEdges []graph.SyntacticRelation, fileHash filehash.Size) []string {
	var out []string

	for _, m := range g.Modules {
		out = append(out, putModule(m, fileHash))
	}
	for _, fn := range g.Functions {
		out = append(out, putFunction(fn, fileHash))
	}
	for _, s := range g.Structs {
		out = append(out, putStruct(s, fileHash))
	}
	for _, e := range g.Enums {
		out = append(out, putEnum(e, fileHash))
	}
	for _, u := range g.Unions {
		out = append(out, putUnion(u, fileHash))
	}
	for _, a := range g.Aliases {
		out = append(out, putTypeAlias(a, fileHash))
	}
	for _, tt := range g.Traits {
		out = append(out, putTrait(tt, fileHash))
	}
	for _, im := range g.Impls {
		out = append(out, putImpl(im, fileHash))
	}
	for _, c := range g.Consts {
		out = append(out, putConst(c, fileHash))
	}
	for _, s := range g.Statics {
		out = append(out, putStatic(s, fileHash))
	}
	for _, mac := range g.Macros {
		out = append(out, putMacro(mac, fileHash))
	}
	for _, imp := range g.Imports {
		out = append(out, putImport(imp, fileHash))
	}
	for _, tn := range g.Types {
		out = append(out, putType(tn))
	}

	for _, e := range g.Edges {
		out = append(out, putEdge(e))
	}
	for _, e := range extraEdges {
		out = append(out, putEdge(e))
	}

	return out
}

func putEdge(e graph.SyntacticRelation) string {
	return fmt.Sprintf(":put syntax_edge { source_id: %s, target_id: %s, kind: %s }",
		quote(e.Source.UUID.String()), quote(e.Target.UUID.String()), quote(e.Kind.String()))
}

func putModule(m *graph.Module, fileHash filehash.Size) string {
	cols := nodeColumns(m.Node, "module", fileHash)
	cols = append(cols, kv("variant", quote(variantString(m.Variant))))
	cols = append(cols, kv("path_attr", quote(m.PathAttr)))
	if m.ResolvedDefinition != nil {
		cols = append(cols, kv("resolved_definition", quote(m.ResolvedDefinition.UUID.String())))
	} else {
		cols = append(cols, kv("resolved_definition", "null"))
	}
	return putStatement("module", cols)
}

func variantString(v graph.ModuleVariantKind) string {
	switch v {
	case graph.ModuleFileBased:
		return "file_based"
	case graph.ModuleInline:
		return "inline"
	case graph.ModuleDeclaration:
		return "declaration"
	default:
		return "unknown"
	}
}

func putFunction(fn *graph.Function, fileHash filehash.Size) string {
	cols := nodeColumns(fn.Node, "function", fileHash)
	cols = append(cols, kv("signature", quote(fn.Signature)))
	cols = append(cols, kv("return_type", optionalUUID(fn.ReturnType)))
	return putStatement("function", cols)
}

func putStruct(s *graph.Struct, fileHash filehash.Size) string {
	return putStatement("struct", nodeColumns(s.Node, "struct", fileHash))
}

func putEnum(e *graph.Enum, fileHash filehash.Size) string {
	return putStatement("enum", nodeColumns(e.Node, "enum", fileHash))
}

func putUnion(u *graph.Union, fileHash filehash.Size) string {
	return putStatement("union", nodeColumns(u.Node, "union", fileHash))
}

func putTypeAlias(a *graph.TypeAlias, fileHash filehash.Size) string {
	cols := nodeColumns(a.Node, "type_alias", fileHash)
	cols = append(cols, kv("aliased", quote(a.Aliased.UUID.String())))
	return putStatement("type_alias", cols)
}

func putTrait(t *graph.Trait, fileHash filehash.Size) string {
	return putStatement("trait", nodeColumns(t.Node, "trait", fileHash))
}

func putImpl(im *graph.Impl, fileHash filehash.Size) string {
	cols := nodeColumns(im.Node, "impl", fileHash)
	cols = append(cols, kv("self_type", quote(im.SelfType.UUID.String())))
	cols = append(cols, kv("trait_type", optionalUUID(im.TraitType)))
	return putStatement("impl", cols)
}

func putConst(c *graph.Const, fileHash filehash.Size) string {
	cols := nodeColumns(c.Node, "const", fileHash)
	cols = append(cols, kv("type_id", quote(c.TypeId.UUID.String())))
	return putStatement("const", cols)
}

func putStatic(s *graph.Static, fileHash filehash.Size) string {
	cols := nodeColumns(s.Node, "static", fileHash)
	cols = append(cols, kv("type_id", quote(s.TypeId.UUID.String())))
	cols = append(cols, kv("mutable", strconv.FormatBool(s.Mutable)))
	return putStatement("static", cols)
}

func putMacro(m *graph.Macro, fileHash filehash.Size) string {
	return putStatement("macro", nodeColumns(m.Node, "macro", fileHash))
}

func putImport(imp *graph.Import, fileHash filehash.Size) string {
	cols := nodeColumns(imp.Node, "import", fileHash)
	cols = append(cols, kv("import_kind", quote(importKindString(imp.ImportKind))))
	cols = append(cols, kv("source_path", stringList(imp.SourcePath)))
	cols = append(cols, kv("visible_name", quote(imp.VisibleName)))
	if imp.OriginalName != nil {
		cols = append(cols, kv("original_name", quote(*imp.OriginalName)))
	} else {
		cols = append(cols, kv("original_name", "null"))
	}
	cols = append(cols, kv("is_glob", strconv.FormatBool(imp.IsGlob)))
	cols = append(cols, kv("is_self_import", strconv.FormatBool(imp.IsSelfImport)))
	return putStatement("import", cols)
}

func importKindString(k graph.ImportKind) string {
	if k == graph.ImportExternCrate {
		return "extern_crate"
	}
	return "use_statement"
}

func putType(tn *graph.TypeNode) string {
	cols := []string{
		kv("id", quote(tn.Id.UUID.String())),
		kv("file_path", quote(tn.FilePath)),
		kv("token_str", quote(tn.TokenStr)),
	}
	return putStatement("type_node", cols)
}

// nodeColumns serialises the fields every node kind shares. kind is
// written to the kind column; node rows are keyed by id regardless of
// kind. fileHash, when
// non-zero, is stored as file_hash for later snippet verification.
func nodeColumns(n graph.Node, kind string, fileHash filehash.Size) []string {
	cols := []string{
		kv("id", quote(n.Id.UUID.String())),
		kv("kind", quote(kind)),
		kv("name", quote(n.Name)),
		kv("span", spanList(n.Span)),
		kv("visibility", visibilityTuple(n.Visibility)),
		kv("attributes", stringList(n.Attributes)),
		kv("docstring", quote(n.Docstring)),
		kv("cfgs", stringList(n.Cfgs)),
		kv("file_path", quote(n.FilePath)),
	}
	if n.TrackingHash != uuid.Nil {
		cols = append(cols, kv("tracking_hash", quote(n.TrackingHash.String())))
	} else {
		cols = append(cols, kv("tracking_hash", "null"))
	}
	var noHash filehash.Size
	if fileHash != noHash {
		cols = append(cols, kv("file_hash", quote(fileHash.String())))
	} else {
		cols = append(cols, kv("file_hash", "null"))
	}
	return cols
}

func spanList(s graph.Span) string {
	return fmt.Sprintf("[%d, %d]", s.StartByte, s.EndByte)
}

func visibilityTuple(v graph.Visibility) string {
	kind := "inherited"
	switch v.Kind {
	case graph.VisPublic:
		kind = "public"
	case graph.VisCrate:
		kind = "crate"
	case graph.VisRestricted:
		kind = "restricted"
	}
	if v.Kind == graph.VisRestricted {
		return fmt.Sprintf("[%s, %s]", quote(kind), stringList(v.RestrictedPath))
	}
	return fmt.Sprintf("[%s, null]", quote(kind))
}

func stringList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func optionalUUID(id *graph.TypeId) string {
	if id == nil {
		return "null"
	}
	return quote(id.UUID.String())
}

func quote(s string) string {
	return strconv.Quote(s)
}

func kv(key, value string) string {
	return fmt.Sprintf("%s: %s", key, value)
}

func putStatement(rel string, cols []string) string {
	return fmt.Sprintf(":put %s {\n  %s\n}", rel, strings.Join(cols, ",\n  "))
}

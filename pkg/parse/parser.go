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

// Package parse walks one Rust source file with tree-sitter and produces a
// PartialGraph: every item's node, its Contains edge from the enclosing
// module, and a per-file deduplicated TypeNode for each distinct type
// string encountered. Cross-file resolution (module tree, re-exports,
// call targets) happens downstream in package moduletree.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/idgen"
)

// Parser walks Rust source files with a pooled tree-sitter parser.
// Parsers are not safe for concurrent use; the pool lets callers fan out
// across files without each goroutine paying grammar-load cost.
type Parser struct {
	logger *slog.Logger
	pool   sync.Pool
}

// New builds a Parser. logger defaults to slog.Default() when nil.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger: logger,
		pool: sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(rust.GetLanguage())
				return p
			},
		},
	}
}

// visitCtx carries the state threaded through one file's walk: the crate
// namespace, source bytes, and the per-file type-string memoization map
// that guarantees one TypeId per unique token string.
type visitCtx struct {
	namespace uuid.UUID
	file      string
	content   []byte
	typeIDs   map[string]uuid.UUID
	graph     *graph.PartialGraph
}

// ParseFile parses content (the raw bytes of file, belonging to the crate
// identified by namespace) and returns its PartialGraph.
func (p *Parser) ParseFile(ctx context.Context, namespace uuid.UUID, file string, content []byte) (*graph.PartialGraph, error) {
	parserObj := p.pool.Get()
	sp, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, fmt.Errorf("invalid parser type from pool")
	}
	defer p.pool.Put(sp)

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		p.logger.Warn("parse.treesitter.syntax_errors", "path", file)
	}

	vctx := &visitCtx{
		namespace: namespace,
		file:      file,
		content:   content,
		typeIDs:   make(map[string]uuid.UUID),
		graph: &graph.PartialGraph{
			FilePath: file,
			CrateNS:  namespace,
		},
	}

	crateRootID := idgen.SyntheticNode(namespace, file, nil, "", graph.KindModule, nil, nil)
	rootModule := &graph.Module{
		Node: graph.Node{
			Id:       graph.AnyNodeId{Kind: graph.KindModule, UUID: crateRootID},
			FilePath: file,
		},
		Variant: graph.ModuleFileBased,
	}
	vctx.graph.Modules = append(vctx.graph.Modules, rootModule)

	p.walkItems(root, vctx, nil, rootModule, nil)

	return vctx.graph, nil
}

// walkItems visits the direct item children of node (a source_file or
// declaration_list body), attaching each discovered item to parent via a
// Contains edge and recursing into nested modules. parentCfgs carries the
// cfg predicates accumulated from every enclosing module so each item's
// cfg_bytes reflects its full nesting, not just its own attributes.
func (p *Parser) walkItems(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		p.visitItem(child, vctx, modulePath, parent, parentCfgs)
	}
}

func (p *Parser) visitItem(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	switch node.Type() {
	case "function_item":
		p.visitFunction(node, vctx, modulePath, parent, parentCfgs)
	case "struct_item":
		p.visitStruct(node, vctx, modulePath, parent, parentCfgs)
	case "enum_item":
		p.visitEnum(node, vctx, modulePath, parent, parentCfgs)
	case "union_item":
		p.visitUnion(node, vctx, modulePath, parent, parentCfgs)
	case "type_item":
		p.visitTypeAlias(node, vctx, modulePath, parent, parentCfgs)
	case "trait_item":
		p.visitTrait(node, vctx, modulePath, parent, parentCfgs)
	case "impl_item":
		p.visitImpl(node, vctx, modulePath, parent, parentCfgs)
	case "mod_item":
		p.visitMod(node, vctx, modulePath, parent, parentCfgs)
	case "const_item":
		p.visitConst(node, vctx, modulePath, parent, parentCfgs)
	case "static_item":
		p.visitStatic(node, vctx, modulePath, parent, parentCfgs)
	case "use_declaration":
		p.visitUse(node, vctx, modulePath, parent, parentCfgs)
	case "extern_crate_declaration":
		p.visitExternCrate(node, vctx, modulePath, parent, parentCfgs)
	case "macro_invocation":
		p.visitMacroInvocation(node, vctx, modulePath, parent, parentCfgs)
	}
}

func nodeText(content []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

func span(n *sitter.Node) graph.Span {
	return graph.Span{StartByte: n.StartByte(), EndByte: n.EndByte()}
}

func location(n *sitter.Node) graph.Location {
	return graph.Location{
		StartLine: int(n.StartPoint().Row) + 1,
		StartCol:  int(n.StartPoint().Column) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		EndCol:    int(n.EndPoint().Column) + 1,
	}
}

// visibilityOf reads an optional visibility_modifier child, handling
// pub, pub(crate), pub(super), and pub(in path::to::mod).
func visibilityOf(node *sitter.Node, content []byte) graph.Visibility {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "visibility_modifier" {
			continue
		}
		text := nodeText(content, child)
		switch {
		case text == "pub":
			return graph.Visibility{Kind: graph.VisPublic}
		case strings.HasPrefix(text, "pub(crate)"):
			return graph.Visibility{Kind: graph.VisCrate}
		case strings.HasPrefix(text, "pub("):
			inner := strings.TrimSuffix(strings.TrimPrefix(text, "pub("), ")")
			inner = strings.TrimPrefix(inner, "in ")
			return graph.Visibility{Kind: graph.VisRestricted, RestrictedPath: strings.Split(inner, "::")}
		}
	}
	return graph.Visibility{Kind: graph.VisInherited}
}

// attributesAndDocsOf collects #[...] attributes and /// or //! doc
// comments immediately preceding node among its older siblings.
func attributesAndDocsOf(node *sitter.Node, content []byte) (attrs []string, cfgs []string, doc string) {
	var docLines []string
	parent := node.Parent()
	if parent == nil {
		return nil, nil, ""
	}
	var siblingsBefore []*sitter.Node
	for i := 0; i < int(parent.ChildCount()); i++ {
		c := parent.Child(i)
		if c == node {
			break
		}
		siblingsBefore = append(siblingsBefore, c)
	}
	for i := len(siblingsBefore) - 1; i >= 0; i-- {
		c := siblingsBefore[i]
		switch c.Type() {
		case "attribute_item":
			text := nodeText(content, c)
			attrs = append([]string{text}, attrs...)
			if strings.Contains(text, "cfg(") || strings.Contains(text, "cfg_attr(") {
				cfgs = append([]string{text}, cfgs...)
			}
		case "line_comment":
			text := nodeText(content, c)
			if strings.HasPrefix(text, "///") || strings.HasPrefix(text, "//!") {
				docLines = append([]string{strings.TrimSpace(strings.TrimLeft(text, "/!"))}, docLines...)
				continue
			}
			return attrs, cfgs, strings.Join(docLines, "\n")
		default:
			return attrs, cfgs, strings.Join(docLines, "\n")
		}
	}
	return attrs, cfgs, strings.Join(docLines, "\n")
}

// cfgBytesFor concatenates the enclosing scope's accumulated cfg bytes
// with this item's own cfg attributes, per the spec's byte-serialised
// cfg_bytes scheme. The ModuleTree never evaluates these predicates; it
// only uses them to keep differently-configured items from colliding.
func cfgBytesFor(parentCfgs []string, ownCfgs []string) []byte {
	all := append(append([]string{}, parentCfgs...), ownCfgs...)
	if len(all) == 0 {
		return nil
	}
	return []byte(strings.Join(all, "\x00"))
}

// internType returns the TypeId for typeString within the current file,
// memoizing so repeated occurrences of the same literal text share one id.
func (vctx *visitCtx) internType(typeString string, scopeID *uuid.UUID) graph.TypeId {
	if id, ok := vctx.typeIDs[typeString]; ok {
		return graph.TypeId{UUID: id}
	}
	id := idgen.SyntheticType(vctx.namespace, vctx.file, typeString, scopeID)
	vctx.typeIDs[typeString] = id
	vctx.graph.Types = append(vctx.graph.Types, &graph.TypeNode{
		Id:       graph.TypeId{UUID: id},
		FilePath: vctx.file,
		TokenStr: typeString,
	})
	return graph.TypeId{UUID: id}
}

func (vctx *visitCtx) addContainsEdge(parent, child graph.AnyNodeId) {
	vctx.graph.Edges = append(vctx.graph.Edges, graph.SyntacticRelation{
		Source: parent, Target: child, Kind: graph.RelContains,
	})
}

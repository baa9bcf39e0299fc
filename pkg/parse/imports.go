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

package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
)

// visitUse expands one `use` item into one or more Import nodes: a
// use_list (`use a::{b, c}`) or a nested scoped_use_list fans out into a
// sibling Import per leaf, each sharing the same SourcePath prefix.
func (p *Parser) visitUse(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	for _, leaf := range expandUseTree(arg, vctx.content, nil) {
		p.emitImport(node, vctx, modulePath, parent, leaf, parentCfgs)
	}
}

// useLeaf is one resolved `use` path: the full source path segments, the
// effective local (visible) name, the pre-rename original name (if any),
// and whether this leaf is a glob (`*`) or bare `self`.
type useLeaf struct {
	path         []string
	visibleName  string
	originalName *string
	isGlob       bool
	isSelf       bool
}

func expandUseTree(node *sitter.Node, content []byte, prefix []string) []useLeaf {
	switch node.Type() {
	case "identifier", "crate", "super", "self":
		name := nodeText(content, node)
		if name == "self" {
			return []useLeaf{{path: prefix, visibleName: lastSegment(prefix), isSelf: true}}
		}
		full := append(append([]string{}, prefix...), name)
		return []useLeaf{{path: full, visibleName: name}}

	case "scoped_identifier":
		pathNode := node.ChildByFieldName("path")
		nameNode := node.ChildByFieldName("name")
		newPrefix := prefix
		if pathNode != nil {
			newPrefix = append(append([]string{}, prefix...), strings.Split(nodeText(content, pathNode), "::")...)
		}
		name := nodeText(content, nameNode)
		full := append(append([]string{}, newPrefix...), name)
		return []useLeaf{{path: full, visibleName: name}}

	case "use_as_clause":
		pathNode := node.ChildByFieldName("path")
		aliasNode := node.ChildByFieldName("alias")
		inner := expandUseTree(pathNode, content, prefix)
		alias := nodeText(content, aliasNode)
		for i := range inner {
			orig := inner[i].visibleName
			inner[i].visibleName = alias
			inner[i].originalName = &orig
		}
		return inner

	case "use_wildcard":
		child := node.Child(0)
		base := prefix
		if child != nil && child.Type() != "*" {
			base = append(append([]string{}, prefix...), pathSegments(child, content)...)
		}
		return []useLeaf{{path: base, visibleName: "<glob>", isGlob: true}}

	case "scoped_use_list":
		pathNode := node.ChildByFieldName("path")
		listNode := node.ChildByFieldName("list")
		newPrefix := prefix
		if pathNode != nil {
			newPrefix = append(append([]string{}, prefix...), pathSegments(pathNode, content)...)
		}
		var out []useLeaf
		if listNode != nil {
			for i := 0; i < int(listNode.ChildCount()); i++ {
				c := listNode.Child(i)
				if isUseTreeNode(c) {
					out = append(out, expandUseTree(c, content, newPrefix)...)
				}
			}
		}
		return out

	case "use_list":
		var out []useLeaf
		for i := 0; i < int(node.ChildCount()); i++ {
			c := node.Child(i)
			if isUseTreeNode(c) {
				out = append(out, expandUseTree(c, content, prefix)...)
			}
		}
		return out

	default:
		name := nodeText(content, node)
		full := append(append([]string{}, prefix...), strings.Split(name, "::")...)
		return []useLeaf{{path: full, visibleName: lastSegment(full)}}
	}
}

func isUseTreeNode(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "scoped_identifier", "use_as_clause", "use_wildcard", "scoped_use_list", "use_list", "self", "crate", "super":
		return true
	default:
		return false
	}
}

func pathSegments(n *sitter.Node, content []byte) []string {
	return strings.Split(nodeText(content, n), "::")
}

func lastSegment(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

func (p *Parser) emitImport(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, leaf useLeaf, parentCfgs []string) {
	parentID := parent.Id.UUID
	n, _ := newNode(node, vctx, modulePath, leaf.visibleName, graph.KindImport, &parentID, parentCfgs)

	imp := &graph.Import{
		Node:         n,
		ImportKind:   graph.ImportUseStatement,
		SourcePath:   leaf.path,
		VisibleName:  leaf.visibleName,
		OriginalName: leaf.originalName,
		IsGlob:       leaf.isGlob,
		IsSelfImport: leaf.isSelf,
	}
	vctx.graph.Imports = append(vctx.graph.Imports, imp)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitExternCrate(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	nameNode := node.ChildByFieldName("name")
	aliasNode := node.ChildByFieldName("alias")
	name := nodeText(vctx.content, nameNode)
	if name == "" {
		return
	}
	visible := name
	var original *string
	if aliasNode != nil {
		alias := nodeText(vctx.content, aliasNode)
		visible = alias
		orig := name
		original = &orig
	}

	parentID := parent.Id.UUID
	n, _ := newNode(node, vctx, modulePath, visible, graph.KindImport, &parentID, parentCfgs)

	imp := &graph.Import{
		Node:         n,
		ImportKind:   graph.ImportExternCrate,
		SourcePath:   []string{name},
		VisibleName:  visible,
		OriginalName: original,
	}
	vctx.graph.Imports = append(vctx.graph.Imports, imp)
	vctx.addContainsEdge(parent.Id, n.Id)
}

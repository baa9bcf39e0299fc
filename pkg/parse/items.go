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
	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/idgen"
)

// newNode builds the common Node payload shared by every item kind,
// generating its SynIdentifier and recording doc/attrs/cfg/visibility.
func newNode(node *sitter.Node, vctx *visitCtx, modulePath []string, name string, kind graph.NodeKind, parentScope *uuid.UUID, parentCfgs []string) (graph.Node, []string) {
	attrs, ownCfgs, doc := attributesAndDocsOf(node, vctx.content)
	cfgBytes := cfgBytesFor(parentCfgs, ownCfgs)
	allCfgs := append(append([]string{}, parentCfgs...), ownCfgs...)

	id := idgen.SyntheticNode(vctx.namespace, vctx.file, modulePath, name, kind, parentScope, cfgBytes)
	return graph.Node{
		Id:         graph.AnyNodeId{Kind: kind, UUID: id},
		Name:       name,
		Span:       span(node),
		Loc:        location(node),
		Visibility: visibilityOf(node, vctx.content),
		Attributes: attrs,
		Docstring:  doc,
		Cfgs:       ownCfgs,
		FilePath:   vctx.file,
	}, allCfgs
}

func fieldName(node *sitter.Node, content []byte) string {
	n := node.ChildByFieldName("name")
	return nodeText(content, n)
}

func (p *Parser) visitFunction(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindFunction, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	fn := &graph.Function{Node: n}
	fn.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)

	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.Params = paramsOf(params, vctx, &n.Id.UUID)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		tid := vctx.internType(nodeText(vctx.content, ret), &n.Id.UUID)
		fn.ReturnType = &tid
	}
	fn.Signature = functionSignature(node, vctx.content)

	vctx.graph.Functions = append(vctx.graph.Functions, fn)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func functionSignature(node *sitter.Node, content []byte) string {
	name := fieldName(node, content)
	var b strings.Builder
	b.WriteString("fn ")
	b.WriteString(name)
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		b.WriteString(nodeText(content, tp))
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		b.WriteString(nodeText(content, params))
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		b.WriteString(" -> ")
		b.WriteString(nodeText(content, ret))
	}
	return b.String()
}

func genericsOf(node *sitter.Node, vctx *visitCtx, scope *uuid.UUID, parentCfgs []string) []graph.GenericRef {
	tp := node.ChildByFieldName("type_parameters")
	if tp == nil {
		return nil
	}
	var out []graph.GenericRef
	for i := 0; i < int(tp.ChildCount()); i++ {
		c := tp.Child(i)
		switch c.Type() {
		case "type_identifier", "lifetime", "constrained_type_parameter", "const_parameter":
			nameNode := c.ChildByFieldName("left")
			name := nodeText(vctx.content, nameNode)
			if name == "" {
				name = nodeText(vctx.content, c)
			}
			id := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, name, graph.KindGenericParam, scope, cfgBytesFor(parentCfgs, nil))
			out = append(out, graph.GenericRef{Id: graph.AnyNodeId{Kind: graph.KindGenericParam, UUID: id}, Name: name})
		}
	}
	return out
}

func paramsOf(paramsNode *sitter.Node, vctx *visitCtx, scope *uuid.UUID) []graph.ParameterRef {
	var out []graph.ParameterRef
	for i := 0; i < int(paramsNode.ChildCount()); i++ {
		c := paramsNode.Child(i)
		switch c.Type() {
		case "self_parameter":
			id := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, "self", graph.KindParameter, scope, nil)
			out = append(out, graph.ParameterRef{Id: graph.AnyNodeId{Kind: graph.KindParameter, UUID: id}, Name: "self", IsSelf: true})
		case "parameter":
			patternNode := c.ChildByFieldName("pattern")
			typeNode := c.ChildByFieldName("type")
			name := nodeText(vctx.content, patternNode)
			var typeStr string
			if typeNode != nil {
				typeStr = nodeText(vctx.content, typeNode)
			}
			tid := vctx.internType(typeStr, scope)
			id := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, name, graph.KindParameter, scope, nil)
			out = append(out, graph.ParameterRef{
				Id:     graph.AnyNodeId{Kind: graph.KindParameter, UUID: id},
				Name:   name,
				TypeId: tid,
			})
		}
	}
	return out
}

func (p *Parser) visitStruct(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindStruct, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	st := &graph.Struct{Node: n}
	st.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)
	if body := node.ChildByFieldName("body"); body != nil {
		st.Fields = fieldsOf(body, vctx, &n.Id.UUID)
	}

	vctx.graph.Structs = append(vctx.graph.Structs, st)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func fieldsOf(body *sitter.Node, vctx *visitCtx, scope *uuid.UUID) []graph.FieldRef {
	var out []graph.FieldRef
	for i := 0; i < int(body.ChildCount()); i++ {
		c := body.Child(i)
		switch c.Type() {
		case "field_declaration":
			name := fieldName(c, vctx.content)
			typeNode := c.ChildByFieldName("type")
			tid := vctx.internType(nodeText(vctx.content, typeNode), scope)
			id := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, name, graph.KindField, scope, nil)
			out = append(out, graph.FieldRef{Id: graph.AnyNodeId{Kind: graph.KindField, UUID: id}, Name: name, TypeId: tid})
		case "ordered_field_declaration":
			typeNode := c.ChildByFieldName("type")
			name := nodeText(vctx.content, c) // tuple struct fields have no name; use index-free text fallback
			tid := vctx.internType(nodeText(vctx.content, typeNode), scope)
			id := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, name, graph.KindField, scope, nil)
			out = append(out, graph.FieldRef{Id: graph.AnyNodeId{Kind: graph.KindField, UUID: id}, Name: name, TypeId: tid})
		}
	}
	return out
}

func (p *Parser) visitEnum(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindEnum, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	en := &graph.Enum{Node: n}
	en.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)

	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			c := body.Child(i)
			if c.Type() != "enum_variant" {
				continue
			}
			vname := fieldName(c, vctx.content)
			if vname == "" {
				continue
			}
			vid := idgen.SyntheticNode(vctx.namespace, vctx.file, nil, vname, graph.KindVariant, &n.Id.UUID, nil)
			variant := graph.VariantRef{Id: graph.AnyNodeId{Kind: graph.KindVariant, UUID: vid}, Name: vname}
			if vbody := c.ChildByFieldName("body"); vbody != nil {
				variantScope := vid
				variant.Fields = fieldsOf(vbody, vctx, &variantScope)
			}
			en.Variants = append(en.Variants, variant)
		}
	}

	vctx.graph.Enums = append(vctx.graph.Enums, en)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitUnion(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindUnion, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	un := &graph.Union{Node: n}
	un.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)
	if body := node.ChildByFieldName("body"); body != nil {
		un.Fields = fieldsOf(body, vctx, &n.Id.UUID)
	}

	vctx.graph.Unions = append(vctx.graph.Unions, un)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitTypeAlias(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindTypeAlias, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	alias := &graph.TypeAlias{Node: n}
	alias.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		alias.Aliased = vctx.internType(nodeText(vctx.content, typeNode), &n.Id.UUID)
	}

	vctx.graph.Aliases = append(vctx.graph.Aliases, alias)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitTrait(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindTrait, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	tr := &graph.Trait{Node: n}
	tr.Generics = genericsOf(node, vctx, &n.Id.UUID, cfgs)

	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			c := body.Child(i)
			if c.Type() != "function_item" && c.Type() != "function_signature_item" {
				continue
			}
			mid := p.visitMethod(c, vctx, modulePath, n.Id.UUID, cfgs)
			if !mid.IsNil() {
				tr.Methods = append(tr.Methods, mid)
			}
		}
	}

	vctx.graph.Traits = append(vctx.graph.Traits, tr)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitImpl(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	parentID := parent.Id.UUID
	name := "<impl>"
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		name = "<impl " + nodeText(vctx.content, typeNode) + ">"
		if traitNode := node.ChildByFieldName("trait"); traitNode != nil {
			name = "<impl " + nodeText(vctx.content, traitNode) + " for " + nodeText(vctx.content, typeNode) + ">"
		}
	}
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindImpl, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	im := &graph.Impl{Node: n}
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		im.SelfType = vctx.internType(nodeText(vctx.content, typeNode), &n.Id.UUID)
	}
	if traitNode := node.ChildByFieldName("trait"); traitNode != nil {
		tid := vctx.internType(nodeText(vctx.content, traitNode), &n.Id.UUID)
		im.TraitType = &tid
	}

	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			c := body.Child(i)
			if c.Type() != "function_item" {
				continue
			}
			mid := p.visitMethod(c, vctx, modulePath, n.Id.UUID, cfgs)
			if !mid.IsNil() {
				im.Methods = append(im.Methods, mid)
			}
		}
	}

	vctx.graph.Impls = append(vctx.graph.Impls, im)
	vctx.addContainsEdge(parent.Id, n.Id)
}

// visitMethod handles a function_item nested inside a trait or impl body.
// Its SynIdentifier scopes on the owning trait/impl id rather than the
// enclosing module, since two impls can legally define methods with the
// same name.
func (p *Parser) visitMethod(node *sitter.Node, vctx *visitCtx, modulePath []string, owner uuid.UUID, parentCfgs []string) graph.AnyNodeId {
	name := fieldName(node, vctx.content)
	if name == "" {
		return graph.AnyNodeId{}
	}
	n, _ := newNode(node, vctx, modulePath, name, graph.KindMethod, &owner, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	fn := &graph.Function{Node: n}
	fn.Generics = genericsOf(node, vctx, &n.Id.UUID, parentCfgs)
	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.Params = paramsOf(params, vctx, &n.Id.UUID)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		tid := vctx.internType(nodeText(vctx.content, ret), &n.Id.UUID)
		fn.ReturnType = &tid
	}
	fn.Signature = functionSignature(node, vctx.content)

	vctx.graph.Functions = append(vctx.graph.Functions, fn)
	return n.Id
}

func (p *Parser) visitMod(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, cfgs := newNode(node, vctx, modulePath, name, graph.KindModule, &parentID, parentCfgs)

	childPath := append(append([]string{}, modulePath...), name)
	body := node.ChildByFieldName("body")

	mod := &graph.Module{Node: n}
	if body == nil {
		mod.Variant = graph.ModuleDeclaration
		mod.DeclarationSpan = span(node)
		for _, a := range n.Attributes {
			if strings.Contains(a, "path") && strings.Contains(a, "=") {
				mod.PathAttr = a
			}
		}
	} else {
		mod.Variant = graph.ModuleInline
	}

	vctx.graph.Modules = append(vctx.graph.Modules, mod)
	vctx.addContainsEdge(parent.Id, n.Id)

	if body != nil {
		p.walkItems(body, vctx, childPath, mod, cfgs)
		mod.Items = childItemIds(vctx.graph, n.Id.UUID)
	}
}

// childItemIds recovers the set of node ids directly Contains-linked from
// parentID, used to populate Module.Items after a submodule's body has
// been walked.
func childItemIds(g *graph.PartialGraph, parentID uuid.UUID) []graph.AnyNodeId {
	var out []graph.AnyNodeId
	for _, e := range g.Edges {
		if e.Kind == graph.RelContains && e.Source.UUID == parentID {
			out = append(out, e.Target)
		}
	}
	return out
}

func (p *Parser) visitConst(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, _ := newNode(node, vctx, modulePath, name, graph.KindConst, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	c := &graph.Const{Node: n}
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		c.TypeId = vctx.internType(nodeText(vctx.content, typeNode), &n.Id.UUID)
	}

	vctx.graph.Consts = append(vctx.graph.Consts, c)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitStatic(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	name := fieldName(node, vctx.content)
	if name == "" {
		return
	}
	parentID := parent.Id.UUID
	n, _ := newNode(node, vctx, modulePath, name, graph.KindStatic, &parentID, parentCfgs)
	n.TrackingHash = idgen.TrackingHash(vctx.namespace, vctx.file, nodeText(vctx.content, node))

	st := &graph.Static{Node: n}
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		st.TypeId = vctx.internType(nodeText(vctx.content, typeNode), &n.Id.UUID)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "mutable_specifier" {
			st.Mutable = true
		}
	}

	vctx.graph.Statics = append(vctx.graph.Statics, st)
	vctx.addContainsEdge(parent.Id, n.Id)
}

func (p *Parser) visitMacroInvocation(node *sitter.Node, vctx *visitCtx, modulePath []string, parent *graph.Module, parentCfgs []string) {
	macroNode := node.ChildByFieldName("macro")
	name := nodeText(vctx.content, macroNode)
	if name == "" {
		name = "<macro>"
	}
	parentID := parent.Id.UUID
	n, _ := newNode(node, vctx, modulePath, name, graph.KindMacro, &parentID, parentCfgs)

	vctx.graph.Macros = append(vctx.graph.Macros, &graph.Macro{Node: n})
	vctx.addContainsEdge(parent.Id, n.Id)
}

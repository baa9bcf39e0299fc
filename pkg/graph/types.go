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

// Package graph defines the shared node/edge data model produced by the
// Parser, merged and resolved by the ModuleTree, and written to the Store
// by the Transformer. It has no behaviour of its own beyond small total
// conversions; every other ingestion package imports it.
package graph

import "github.com/google/uuid"

// NodeKind discriminates the closed set of primary and associated node
// variants. It is part of the hash input for every SynIdentifier so that
// a Function and a Module with otherwise identical coordinates never
// collide.
type NodeKind uint8

const (
	KindUnknown NodeKind = iota
	KindFunction
	KindStruct
	KindEnum
	KindUnion
	KindTypeAlias
	KindTrait
	KindImpl
	KindModule
	KindConst
	KindStatic
	KindMacro
	KindImport
	KindMethod
	KindField
	KindVariant
	KindGenericParam
	KindParameter
	KindAttribute
)

func (k NodeKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	case KindTypeAlias:
		return "type_alias"
	case KindTrait:
		return "trait"
	case KindImpl:
		return "impl"
	case KindModule:
		return "module"
	case KindConst:
		return "const"
	case KindStatic:
		return "static"
	case KindMacro:
		return "macro"
	case KindImport:
		return "import"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindVariant:
		return "variant"
	case KindGenericParam:
		return "generic_param"
	case KindParameter:
		return "parameter"
	case KindAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// IsPrimary reports whether the kind is one of the top-level item kinds
// that own a Contains edge from their enclosing module, as opposed to an
// associated kind owned by a primary node.
func (k NodeKind) IsPrimary() bool {
	switch k {
	case KindFunction, KindStruct, KindEnum, KindUnion, KindTypeAlias,
		KindTrait, KindImpl, KindModule, KindConst, KindStatic, KindMacro,
		KindImport:
		return true
	default:
		return false
	}
}

// AnyNodeId is a tagged union over every typed node-id wrapper. It is the
// portable key used on edges and in adjacency indexes; the raw UUID is
// what actually serialises to the Store.
type AnyNodeId struct {
	Kind NodeKind
	UUID uuid.UUID
}

func (id AnyNodeId) String() string {
	return id.UUID.String()
}

// IsNil reports whether id is the zero value (no node referenced).
func (id AnyNodeId) IsNil() bool {
	return id.UUID == uuid.Nil
}

// FunctionId, StructId, ... are disjoint-at-the-type-level wrappers over a
// SynIdentifier. Each converts totally to and from AnyNodeId.
type (
	FunctionId   struct{ uuid.UUID }
	StructId     struct{ uuid.UUID }
	EnumId       struct{ uuid.UUID }
	UnionId      struct{ uuid.UUID }
	TypeAliasId  struct{ uuid.UUID }
	TraitId      struct{ uuid.UUID }
	ImplId       struct{ uuid.UUID }
	ModuleId     struct{ uuid.UUID }
	ConstId      struct{ uuid.UUID }
	StaticId     struct{ uuid.UUID }
	MacroId      struct{ uuid.UUID }
	ImportId     struct{ uuid.UUID }
	MethodId     struct{ uuid.UUID }
	FieldId      struct{ uuid.UUID }
	VariantId    struct{ uuid.UUID }
	GenericId    struct{ uuid.UUID }
	ParameterId  struct{ uuid.UUID }
	AttributeId  struct{ uuid.UUID }
)

// AsAny converts a ModuleId to the tagged union form. Every typed id
// below has the same AsAny conversion; typed wrappers stay thin so the Transformer's exhaustive switch has one call site per kind.
func (id ModuleId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindModule, UUID: id.UUID} }
func (id FunctionId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindFunction, UUID: id.UUID} }
func (id StructId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindStruct, UUID: id.UUID} }
func (id EnumId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindEnum, UUID: id.UUID} }
func (id UnionId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindUnion, UUID: id.UUID} }
func (id TypeAliasId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindTypeAlias, UUID: id.UUID} }
func (id TraitId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindTrait, UUID: id.UUID} }
func (id ImplId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindImpl, UUID: id.UUID} }
func (id ConstId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindConst, UUID: id.UUID} }
func (id StaticId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindStatic, UUID: id.UUID} }
func (id MacroId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindMacro, UUID: id.UUID} }
func (id ImportId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindImport, UUID: id.UUID} }
func (id MethodId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindMethod, UUID: id.UUID} }
func (id FieldId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindField, UUID: id.UUID} }
func (id VariantId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindVariant, UUID: id.UUID} }
func (id GenericId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindGenericParam, UUID: id.UUID} }
func (id ParameterId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindParameter, UUID: id.UUID} }
func (id AttributeId) AsAny() AnyNodeId { return AnyNodeId{Kind: KindAttribute, UUID: id.UUID} }

// TypeId identifies a unique type-token string within a file's context.
type TypeId struct{ uuid.UUID }

// VisibilityKind enumerates Rust's visibility forms.
type VisibilityKind uint8

const (
	VisInherited VisibilityKind = iota
	VisPublic
	VisCrate
	VisRestricted
)

// Visibility carries the restricted path for pub(in path)/pub(crate)/
// pub(super) forms; RestrictedPath is nil for Public/Crate/Inherited.
type Visibility struct {
	Kind           VisibilityKind
	RestrictedPath []string
}

// Span is the authoritative byte range used for hashing/snippets.
type Span struct {
	StartByte uint32
	EndByte   uint32
}

// Location is a non-authoritative human-facing line/column pair, kept
// alongside Span for display purposes only.
type Location struct {
	StartLine, StartCol int
	EndLine, EndCol     int
}

// RelationKind enumerates SyntacticRelation edge kinds.
type RelationKind uint8

const (
	RelContains RelationKind = iota
	RelModuleImports
	RelModuleDeclarationResolvesToDefinition
	RelImplementsFor
	RelImplementsTrait
	RelReExports
	RelHasField
	RelHasVariant
	RelHasParameter
	RelHasGenericParam
)

func (k RelationKind) String() string {
	switch k {
	case RelContains:
		return "Contains"
	case RelModuleImports:
		return "ModuleImports"
	case RelModuleDeclarationResolvesToDefinition:
		return "ModuleDeclarationResolvesToDefinition"
	case RelImplementsFor:
		return "ImplementsFor"
	case RelImplementsTrait:
		return "ImplementsTrait"
	case RelReExports:
		return "ReExports"
	case RelHasField:
		return "HasField"
	case RelHasVariant:
		return "HasVariant"
	case RelHasParameter:
		return "HasParameter"
	case RelHasGenericParam:
		return "HasGenericParam"
	default:
		return "Unknown"
	}
}

// SyntacticRelation is a directed edge reflecting source structure.
type SyntacticRelation struct {
	Source AnyNodeId
	Target AnyNodeId
	Kind   RelationKind
}

// Node is the common payload every primary and associated node kind
// carries, regardless of its specific variant fields (held separately in
// Function, Struct, Module, Import, ...).
type Node struct {
	Id         AnyNodeId
	Name       string
	Span       Span
	Loc        Location
	Visibility Visibility
	Attributes []string
	Docstring  string
	Cfgs       []string
	// TrackingHash is set for nodes whose token stream is tracked for
	// change detection (primary items); zero value otherwise.
	TrackingHash uuid.UUID
	FilePath     string
}

// ModuleVariantKind discriminates Module's three representations.
type ModuleVariantKind uint8

const (
	ModuleFileBased ModuleVariantKind = iota
	ModuleInline
	ModuleDeclaration
)

// Module describes one of the three module representations named in the
// data model. Only the fields relevant to Variant are populated.
type Module struct {
	Node
	Variant ModuleVariantKind

	// FileBased
	FileAttrs []string
	FileDocs  string

	// Both FileBased and Inline
	Items []AnyNodeId

	// Declaration
	DeclarationSpan     Span
	ResolvedDefinition  *AnyNodeId
	PathAttr            string // raw #[path = "..."] value, empty if absent
}

// ImportKind distinguishes use-statements from extern-crate declarations.
type ImportKind uint8

const (
	ImportUseStatement ImportKind = iota
	ImportExternCrate
)

// Import models one `use` item or `extern crate` declaration.
type Import struct {
	Node
	ImportKind   ImportKind
	SourcePath   []string
	VisibleName  string
	OriginalName *string
	IsGlob       bool
	IsSelfImport bool
}

// Function, Struct, Enum, ... carry variant-specific fields on top of the
// common Node payload. Only the fields the Transformer needs to persist
// are modelled; this is deliberately not a full semantic AST.
type Function struct {
	Node
	Signature  string
	ReturnType *TypeId
	Params     []ParameterRef
	Generics   []GenericRef
}

type ParameterRef struct {
	Id       AnyNodeId
	Name     string
	TypeId   TypeId
	IsSelf   bool
}

type GenericRef struct {
	Id   AnyNodeId
	Name string
}

type Struct struct {
	Node
	Fields   []FieldRef
	Generics []GenericRef
}

type FieldRef struct {
	Id     AnyNodeId
	Name   string
	TypeId TypeId
}

type Enum struct {
	Node
	Variants []VariantRef
	Generics []GenericRef
}

type VariantRef struct {
	Id     AnyNodeId
	Name   string
	Fields []FieldRef
}

type Union struct {
	Node
	Fields   []FieldRef
	Generics []GenericRef
}

type TypeAlias struct {
	Node
	Aliased  TypeId
	Generics []GenericRef
}

type Trait struct {
	Node
	Methods  []AnyNodeId
	Generics []GenericRef
}

type Impl struct {
	Node
	SelfType  TypeId
	TraitType *TypeId
	Methods   []AnyNodeId
}

type Const struct {
	Node
	TypeId TypeId
}

type Static struct {
	Node
	TypeId   TypeId
	Mutable  bool
}

type Macro struct {
	Node
}

// TypeNode is one unique type-token string within a file's context.
type TypeNode struct {
	Id       TypeId
	FilePath string
	TokenStr string
}

// PartialGraph is the Parser's per-file output, before module resolution.
type PartialGraph struct {
	FilePath  string
	CrateNS   uuid.UUID
	Modules   []*Module
	Functions []*Function
	Structs   []*Struct
	Enums     []*Enum
	Unions    []*Union
	Aliases   []*TypeAlias
	Traits    []*Trait
	Impls     []*Impl
	Consts    []*Const
	Statics   []*Static
	Macros    []*Macro
	Imports   []*Import
	Types     []*TypeNode
	Edges     []SyntacticRelation
}

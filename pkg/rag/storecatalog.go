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
	"fmt"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/store"
)

// nodeRelations is every primary-node relation Store.EnsureSchema
// creates, in the same fixed order pkg/indexer walks them.
var nodeRelations = []string{
	"module", "function", "struct", "enum", "union", "type_alias",
	"trait", "impl", "const", "static", "macro", "import",
}

func kindForRelation(relation string) graph.NodeKind {
	switch relation {
	case "module":
		return graph.KindModule
	case "function":
		return graph.KindFunction
	case "struct":
		return graph.KindStruct
	case "enum":
		return graph.KindEnum
	case "union":
		return graph.KindUnion
	case "type_alias":
		return graph.KindTypeAlias
	case "trait":
		return graph.KindTrait
	case "impl":
		return graph.KindImpl
	case "const":
		return graph.KindConst
	case "static":
		return graph.KindStatic
	case "macro":
		return graph.KindMacro
	case "import":
		return graph.KindImport
	default:
		return graph.KindUnknown
	}
}

// StoreCatalog implements Catalog against a Store, reading vectors from
// a single named embedding relation (see Store.CreateVectorRelation).
type StoreCatalog struct {
	s          *store.Store
	vectorName string
}

// NewStoreCatalog builds a Catalog over s. vectorName is the vector
// relation Rag should consult, typically the one the indexer last
// wrote to.
func NewStoreCatalog(s *store.Store, vectorName string) *StoreCatalog {
	return &StoreCatalog{s: s, vectorName: vectorName}
}

// AllNodes reads every row from every primary-node relation.
func (c *StoreCatalog) AllNodes(ctx context.Context) ([]NodeMeta, error) {
	var out []NodeMeta
	for _, rel := range nodeRelations {
		q := fmt.Sprintf(`?[id, name, docstring, file_path, span, file_hash] := *%s{id, name, docstring, file_path, span, file_hash}`, rel)
		res, err := c.s.Query(ctx, q, nil)
		if err != nil {
			return nil, fmt.Errorf("store catalog: query %s: %w", rel, err)
		}
		kind := kindForRelation(rel)
		for _, row := range res.Rows {
			if len(row) < 6 {
				continue
			}
			var hashStr string
			if row[5] != nil {
				hashStr = fmt.Sprint(row[5])
			}
			hash, err := filehash.ParseSize(hashStr)
			if err != nil {
				return nil, fmt.Errorf("store catalog: parse file_hash for %s: %w", rel, err)
			}
			out = append(out, NodeMeta{
				ID:        fmt.Sprint(row[0]),
				Kind:      kind,
				Name:      fmt.Sprint(row[1]),
				Docstring: fmt.Sprint(row[2]),
				FilePath:  fmt.Sprint(row[3]),
				Span:      parseSpan(row[4]),
				FileHash:  hash,
			})
		}
	}
	return out, nil
}

// Vector reads id's embedding from the configured vector relation.
func (c *StoreCatalog) Vector(ctx context.Context, id string) ([]float32, bool, error) {
	if c.vectorName == "" {
		return nil, false, nil
	}
	q := fmt.Sprintf(`?[embedding] := *%s{node_id: %q, embedding}`, c.vectorName, id)
	res, err := c.s.Query(ctx, q, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store catalog: vector for %s: %w", id, err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil, false, nil
	}
	items, ok := res.Rows[0][0].([]any)
	if !ok {
		return nil, false, nil
	}
	vec := make([]float32, len(items))
	for i, v := range items {
		f, _ := toFloat(v)
		vec[i] = f
	}
	return vec, true, nil
}

func parseSpan(v any) graph.Span {
	items, ok := v.([]any)
	if !ok || len(items) != 2 {
		return graph.Span{}
	}
	start, _ := toFloat(items[0])
	end, _ := toFloat(items[1])
	return graph.Span{StartByte: uint32(start), EndByte: uint32(end)}
}

func toFloat(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int:
		return float32(n), true
	default:
		return 0, false
	}
}

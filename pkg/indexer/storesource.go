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

package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/store"
)

// nodeRelations is every primary-node relation EnsureSchema creates,
// queried in this fixed order so FetchPending's chunking is
// deterministic across calls.
var nodeRelations = []string{
	"module", "function", "struct", "enum", "union", "type_alias",
	"trait", "impl", "const", "static", "macro", "import",
}

// StoreSource pulls nodes that have no row yet in the vector relation
// named vectorName,
// walking nodeRelations in order and paging within each with an offset
// cursor so a single relation's count never needs to fit in memory.
type StoreSource struct {
	s          *store.Store
	vectorName string
	dims       int

	relIdx int
	offset int
}

// NewStoreSource builds a Source reading from s, checking absence in the
// vector relation named vectorName.
func NewStoreSource(s *store.Store, vectorName string, dims int) *StoreSource {
	return &StoreSource{s: s, vectorName: vectorName, dims: dims}
}

// Total counts outstanding unembedded nodes across every node relation.
func (ss *StoreSource) Total(ctx context.Context) (int, error) {
	total := 0
	for _, rel := range nodeRelations {
		n, err := ss.countPending(ctx, rel)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (ss *StoreSource) countPending(ctx context.Context, relation string) (int, error) {
	q := fmt.Sprintf(`?[count(id)] := *%s{id, file_path: _, span: _}, not *%s{node_id: id}`, relation, ss.vectorName)
	res, err := ss.s.Query(ctx, q, nil)
	if err != nil {
		return 0, fmt.Errorf("count pending %s: %w", relation, err)
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	n, _ := toInt(res.Rows[0][0])
	return n, nil
}

// FetchPending returns up to limit PendingNode entries, advancing through
// nodeRelations in the fixed order above as each is exhausted.
func (ss *StoreSource) FetchPending(ctx context.Context, limit int) ([]PendingNode, error) {
	var out []PendingNode
	for len(out) < limit && ss.relIdx < len(nodeRelations) {
		relation := nodeRelations[ss.relIdx]
		remaining := limit - len(out)

		q := fmt.Sprintf(`?[id, file_path, span, file_hash] := *%s{id, file_path, span, file_hash}, not *%s{node_id: id} :limit %d :offset %d :sort id`,
			relation, ss.vectorName, remaining, ss.offset)
		res, err := ss.s.Query(ctx, q, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch pending %s: %w", relation, err)
		}

		if len(res.Rows) == 0 {
			ss.relIdx++
			ss.offset = 0
			continue
		}

		for _, row := range res.Rows {
			id, err := uuid.Parse(fmt.Sprint(row[0]))
			if err != nil {
				continue
			}
			var hashStr string
			if len(row) > 3 && row[3] != nil {
				hashStr = fmt.Sprint(row[3])
			}
			hash, err := filehash.ParseSize(hashStr)
			if err != nil {
				continue
			}
			out = append(out, PendingNode{
				ID:       graph.AnyNodeId{Kind: kindForRelation(relation), UUID: id},
				FilePath: fmt.Sprint(row[1]),
				Span:     parseSpan(row[2]),
				FileHash: hash,
			})
		}
		ss.offset += len(res.Rows)
		if len(res.Rows) < remaining {
			ss.relIdx++
			ss.offset = 0
		}
	}
	return out, nil
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

func parseSpan(v any) graph.Span {
	items, ok := v.([]any)
	if !ok || len(items) != 2 {
		return graph.Span{}
	}
	start, _ := toInt(items[0])
	end, _ := toInt(items[1])
	return graph.Span{StartByte: uint32(start), EndByte: uint32(end)}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// StoreSink writes an embedded batch's vectors into the vector relation.
// It records nothing for failed nodes (the indexer logs them); they stay
// absent from the vector relation, so a later indexer run fetches them
// again.
type StoreSink struct {
	s *store.Store
}

// NewStoreSink builds a Sink writing into s.
func NewStoreSink(s *store.Store) *StoreSink { return &StoreSink{s: s} }

// WriteVectors upserts one row per node into emb_<model>_<dims>,
// creating the relation on first use.
func (sk *StoreSink) WriteVectors(ctx context.Context, model string, dims int, nodes []PendingNode, vectors [][]float32) error {
	relation, err := sk.s.CreateVectorRelation(model, dims)
	if err != nil {
		return fmt.Errorf("ensure vector relation: %w", err)
	}

	var stmts []string
	for i, n := range nodes {
		stmts = append(stmts, fmt.Sprintf(`:put %s { node_id: %q, embedding: %s }`, relation, n.ID.UUID.String(), floatList(vectors[i])))
	}
	script := strings.Join(stmts, "\n")

	_, err = sk.s.Execute(ctx, relation, script, nil)
	return err
}

// MarkFailed is a no-op beyond the indexer's own logging: a node with no
// row in the vector relation is, by construction, still "pending". Within
// the current run the StoreSource's offset cursor has already moved past
// it; a fresh StoreSource on a later run fetches it again.
func (sk *StoreSink) MarkFailed(ctx context.Context, nodes []PendingNode, reason string) error {
	return nil
}

func floatList(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

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

package store

import (
	"fmt"
	"strings"
)

// nodeColumns is the column list every primary-node relation shares,
// mirroring pkg/transform's nodeColumns. attributes/cfgs/source_path are
// stored as Json since Cozo has no native variable-length-list column
// type that also nests the visibility tuple cleanly.
const nodeColumns = `
		id: String =>
		kind: String,
		name: String,
		span: Json,
		visibility: Json,
		attributes: Json,
		docstring: String,
		cfgs: Json,
		file_path: String,
		tracking_hash: String?,
		file_hash: String?`

// relations is every `:create` statement EnsureSchema issues. One
// relation per graph.NodeKind.IsPrimary() kind, plus the associated
// type_node relation, the syntax_edge relation, and the vector-search
// scaffolding (embedding_set catalogue + per-model vector relations,
// created lazily by CreateVectorRelation).
var relations = []string{
	`:create module {` + nodeColumns + `,
		variant: String,
		path_attr: String,
		resolved_definition: String?
	}`,
	`:create function {` + nodeColumns + `,
		signature: String,
		return_type: String?
	}`,
	`:create struct {` + nodeColumns + `
	}`,
	`:create enum {` + nodeColumns + `
	}`,
	`:create union {` + nodeColumns + `
	}`,
	`:create type_alias {` + nodeColumns + `,
		aliased: String
	}`,
	`:create trait {` + nodeColumns + `
	}`,
	`:create impl {` + nodeColumns + `,
		self_type: String,
		trait_type: String?
	}`,
	`:create const {` + nodeColumns + `,
		type_id: String
	}`,
	`:create static {` + nodeColumns + `,
		type_id: String,
		mutable: Bool
	}`,
	`:create macro {` + nodeColumns + `
	}`,
	`:create import {` + nodeColumns + `,
		import_kind: String,
		source_path: Json,
		visible_name: String,
		original_name: String?,
		is_glob: Bool,
		is_self_import: Bool
	}`,
	`:create type_node {
		id: String =>
		file_path: String,
		token_str: String
	}`,
	`:create syntax_edge {
		source_id: String,
		target_id: String,
		kind: String =>
	}`,
	// embedding_set catalogues which (model, dims) combinations have a
	// backing vector relation, so CreateVectorRelation can be idempotent
	// without parsing engine error strings.
	`:create embedding_set {
		relation_name: String =>
		model: String,
		dims: Int
	}`,
}

// EnsureSchema creates every relation EnsureSchema declares. It is
// idempotent: "already exists" failures from a prior run are swallowed,
// any other failure aborts and is returned.
func (s *Store) EnsureSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, stmt := range relations {
		if _, err := s.db.Run(stmt, nil); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("create relation: %w", err)
		}
	}
	return nil
}

// CreateVectorRelation creates (if absent) a vector relation for the
// given embedding model and dimensionality, named emb_<sanitised
// model>_<dims>, and records it in embedding_set so Rag can discover it.
func (s *Store) CreateVectorRelation(model string, dims int) (string, error) {
	name := vectorRelationName(model, dims)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	create := fmt.Sprintf(`:create %s {
		node_id: String =>
		embedding: <F32; %d>
	}`, name, dims)
	if _, err := s.db.Run(create, nil); err != nil && !isAlreadyExists(err) {
		return "", fmt.Errorf("create vector relation: %w", err)
	}

	put := fmt.Sprintf(`:put embedding_set { relation_name: %q, model: %q, dims: %d }`, name, model, dims)
	if _, err := s.db.Run(put, nil); err != nil {
		return "", fmt.Errorf("register vector relation: %w", err)
	}

	return name, nil
}

// CreateHNSWIndex builds an HNSW index over relation's embedding column.
func (s *Store) CreateHNSWIndex(relation string, dims, m, efConstruction int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	stmt := fmt.Sprintf(`::hnsw create %s:hnsw_idx { dim: %d, m: %d, ef_construction: %d, fields: [embedding] }`,
		relation, dims, m, efConstruction)
	if _, err := s.db.Run(stmt, nil); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

func vectorRelationName(model string, dims int) string {
	sanitised := make([]rune, 0, len(model))
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sanitised = append(sanitised, r)
		case r >= 'A' && r <= 'Z':
			sanitised = append(sanitised, r+('a'-'A'))
		default:
			sanitised = append(sanitised, '_')
		}
	}
	return fmt.Sprintf("emb_%s_%d", string(sanitised), dims)
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "conflicts with an existing one")
}

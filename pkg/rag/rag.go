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

// Package rag serves hybrid (dense + sparse) retrieval over indexed
// nodes and assembles the fused results into a token-bounded context
// for downstream consumers (e.g. an LLM prompt). It pairs a coder/hnsw
// dense index and a bleve BM25 sparse index, reciprocal-rank-fuses
// their rankings (or, when callers want raw comparable scores, applies
// one of the ScoreNorm normalizations), and resolves each fused hit to
// a verified source snippet via the IoActor.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/embed"
	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/ioactor"
)

// NodeMeta is the subset of a node's stored fields Rag needs to
// present a result: identity, location, and the text BM25 was built
// from. FileHash, when populated by the Catalog, is the file's content
// hash as recorded at ingestion time; AssembleContext passes it to the
// IoActor so a file edited since indexing surfaces as a stale result
// rather than a silently mismatched snippet.
type NodeMeta struct {
	ID        string
	Kind      graph.NodeKind
	Name      string
	Docstring string
	FilePath  string
	Span      graph.Span
	FileHash  filehash.Size
}

// Catalog resolves node metadata and lists the corpus Rag indexes
// against. StoreCatalog implements it over a Store in production; tests
// can supply an in-memory fake.
type Catalog interface {
	// AllNodes returns every node currently eligible for retrieval.
	AllNodes(ctx context.Context) ([]NodeMeta, error)
	// Vector returns the stored embedding for a node, if one exists.
	Vector(ctx context.Context, id string) ([]float32, bool, error)
}

// ModuleResolver maps a node to its canonical module path, e.g. via
// moduletree.Tree.ShortestPublicPath. Optional: when nil, AssembledPart
// carries an empty ModulePath.
type ModuleResolver interface {
	ModulePath(id graph.AnyNodeId) ([]string, error)
}

// Service wires together the dense index, the sparse index, and the
// node catalog to answer hybrid queries.
type Service struct {
	catalog  Catalog
	embedder embed.Embedder
	io       *ioactor.Actor
	resolver ModuleResolver

	dense  *DenseIndex
	sparse *SparseIndex
	meta   map[string]NodeMeta
}

// Config wires a Service's collaborators.
type Config struct {
	Catalog  Catalog
	Embedder embed.Embedder
	IO       *ioactor.Actor
	Resolver ModuleResolver
}

// NewService builds a Service and populates its dense/sparse indexes
// from the catalog's current contents. Call Refresh to pick up nodes
// indexed after construction.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	sparse, err := NewSparseIndex()
	if err != nil {
		return nil, fmt.Errorf("rag: new sparse index: %w", err)
	}
	s := &Service{
		catalog:  cfg.Catalog,
		embedder: cfg.Embedder,
		io:       cfg.IO,
		resolver: cfg.Resolver,
		dense:    NewDenseIndex(cfg.Embedder.Dims()),
		sparse:   sparse,
		meta:     make(map[string]NodeMeta),
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh rebuilds the dense and sparse indexes from the catalog's
// current node set. Cheap enough to call after each indexer run.
func (s *Service) Refresh(ctx context.Context) error {
	nodes, err := s.catalog.AllNodes(ctx)
	if err != nil {
		return fmt.Errorf("rag: list nodes: %w", err)
	}
	for _, n := range nodes {
		s.meta[n.ID] = n
		if err := s.sparse.Index(n.ID, n.Name, n.Docstring, ""); err != nil {
			return fmt.Errorf("rag: index %s: %w", n.ID, err)
		}
		vec, ok, err := s.catalog.Vector(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("rag: vector for %s: %w", n.ID, err)
		}
		if ok {
			if err := s.dense.Add(n.ID, vec); err != nil {
				return fmt.Errorf("rag: dense add %s: %w", n.ID, err)
			}
		}
	}
	return nil
}

// SearchOptions tunes one hybrid query.
type SearchOptions struct {
	Limit int
	// Norm rescales dense and sparse scores before fusion when set; a
	// nil Norm falls back to reciprocal-rank fusion, which is
	// scale-free and needs no normalization.
	Norm ScoreNorm
}

// Search runs the query through both the dense and sparse indexes and
// returns a single fused ranking, best match first.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredID, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	sparseHits, err := s.sparse.Search(ctx, query, limit*4)
	if err != nil {
		return nil, fmt.Errorf("rag: sparse search: %w", err)
	}

	var denseHits []ScoredID
	if s.dense.Len() > 0 {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("rag: embed query: %w", err)
		}
		denseHits, err = s.dense.Search(vecs[0], limit*4)
		if err != nil {
			return nil, fmt.Errorf("rag: dense search: %w", err)
		}
	}

	var fused []ScoredID
	if opts.Norm != nil {
		fused = mergeByNormalizedScore(opts.Norm, denseHits, sparseHits)
	} else {
		fused = ReciprocalRankFusion([][]ScoredID{denseHits, sparseHits}, DefaultRRFK)
	}
	sortDescending(fused)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// mergeByNormalizedScore normalizes each ranking independently, then
// sums per-ID contributions across rankings.
func mergeByNormalizedScore(norm ScoreNorm, rankings ...[]ScoredID) []ScoredID {
	acc := make(map[string]float32)
	order := make([]string, 0)
	for _, ranking := range rankings {
		for _, s := range norm.Normalize(ranking) {
			if _, seen := acc[s.ID]; !seen {
				order = append(order, s.ID)
			}
			acc[s.ID] += s.Score
		}
	}
	out := make([]ScoredID, len(order))
	for i, id := range order {
		out[i] = ScoredID{ID: id, Score: acc[id]}
	}
	return out
}

func sortDescending(s []ScoredID) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Modality tags what kind of text a ContextPart carries.
type Modality uint8

const (
	ModalityCode Modality = iota
	ModalityDoc
)

func (m Modality) String() string {
	if m == ModalityDoc {
		return "doc"
	}
	return "code"
}

// ContextPart is one unit of assembled context: a verified snippet
// plus the provenance a downstream consumer needs to cite it.
type ContextPart struct {
	NodeID     string
	Modality   Modality
	FilePath   string
	ModulePath string
	Text       string
	Score      float32
}

// AssembledContext is the result of budget-bounded context assembly:
// the parts that fit, plus summary stats about what was included and
// dropped. Stale counts candidates dropped because their recorded file
// hash no longer matched the file on disk (ioactor.ErrFileChanged).
type AssembledContext struct {
	Parts        []ContextPart
	TokensUsed   int
	TokensBudget int
	Considered   int
	Included     int
	Stale        int
}

// estimateTokens approximates token count as whitespace-delimited word
// count; Rag has no tokenizer of its own and this keeps budgeting
// conservative without depending on a model-specific one.
func estimateTokens(s string) int {
	return len(strings.Fields(s))
}

// AssembleContext resolves each fused result to a verified snippet via
// the IoActor and accumulates parts until tokenBudget is exhausted. A
// node whose snippet exceeds the remaining budget is skipped in favor
// of the next (smaller) candidate rather than truncated mid-snippet.
func (s *Service) AssembleContext(ctx context.Context, results []ScoredID, tokenBudget int) (*AssembledContext, error) {
	out := &AssembledContext{TokensBudget: tokenBudget}

	reqs := make([]ioactor.SnippetRequest, 0, len(results))
	metas := make([]NodeMeta, 0, len(results))
	scores := make([]float32, 0, len(results))
	for _, r := range results {
		meta, ok := s.meta[r.ID]
		if !ok {
			continue
		}
		reqs = append(reqs, ioactor.SnippetRequest{
			Path:         meta.FilePath,
			StartByte:    meta.Span.StartByte,
			EndByte:      meta.Span.EndByte,
			ExpectedHash: meta.FileHash,
		})
		metas = append(metas, meta)
		scores = append(scores, r.Score)
	}
	snippets := s.io.ReadSnippets(ctx, reqs)

	for i, res := range snippets {
		out.Considered++
		if res.Err != nil {
			if errors.Is(res.Err, ioactor.ErrFileChanged) {
				out.Stale++
			}
			continue
		}
		meta := metas[i]
		text := string(res.Bytes)
		cost := estimateTokens(text)
		if out.TokensUsed+cost > tokenBudget {
			continue
		}

		var modulePath string
		if s.resolver != nil {
			if id, err := uuid.Parse(meta.ID); err == nil {
				if path, err := s.resolver.ModulePath(graph.AnyNodeId{Kind: meta.Kind, UUID: id}); err == nil {
					modulePath = strings.Join(path, "::")
				}
			}
		}

		out.Parts = append(out.Parts, ContextPart{
			NodeID:     meta.ID,
			Modality:   ModalityCode,
			FilePath:   meta.FilePath,
			ModulePath: modulePath,
			Text:       text,
			Score:      scores[i],
		})
		out.TokensUsed += cost
		out.Included++
	}
	return out, nil
}

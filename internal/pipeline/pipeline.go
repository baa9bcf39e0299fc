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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline wires discovery, parsing, module-tree resolution,
// Datalog serialisation, and embedding into one ingestion run over a
// crate's source tree. It is the local-database analogue of
// pkg/ingestion's LocalPipeline, rebuilt over this repository's Rust
// parser and CozoDB Store instead of the teacher's generic
// multi-language parser and Primary Hub.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/josephleblanc/ploke-ingest/pkg/config"
	"github.com/josephleblanc/ploke-ingest/pkg/discovery"
	"github.com/josephleblanc/ploke-ingest/pkg/embed"
	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/idgen"
	"github.com/josephleblanc/ploke-ingest/pkg/indexer"
	"github.com/josephleblanc/ploke-ingest/pkg/ioactor"
	"github.com/josephleblanc/ploke-ingest/pkg/moduletree"
	"github.com/josephleblanc/ploke-ingest/pkg/parse"
	"github.com/josephleblanc/ploke-ingest/pkg/store"
	"github.com/josephleblanc/ploke-ingest/pkg/transform"
)

// Result summarises one ingestion run, mirroring the fields
// pkg/ingestion's IngestionResult reports.
type Result struct {
	CrateID           string
	FilesParsed       int
	FilesFailed       int
	StatementsWritten int
	ResolutionErrors  int
	ParseDuration     time.Duration
	WriteDuration     time.Duration
	EmbedDuration     time.Duration
	TotalDuration     time.Duration
}

// Run walks repoRoot, parses every discovered .rs file, resolves the
// module tree, writes the resulting nodes and edges to s, and then runs
// one embedding pass over whatever the Store reports as pending.
func Run(ctx context.Context, s *store.Store, embedder embed.Embedder, cfg *config.Config, repoRoot string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	res := &Result{}

	ws, err := discovery.DiscoverWorkspace(repoRoot, cfg.Paths.Exclude, 10<<20)
	if err != nil {
		return nil, fmt.Errorf("discover workspace: %w", err)
	}
	if len(ws.Crates) == 0 {
		return nil, fmt.Errorf("no crates discovered under %s", repoRoot)
	}

	parser := parse.New(logger)
	tree := moduletree.New()

	parseStart := time.Now()
	var graphs []*graph.PartialGraph
	var hashes []filehash.Size
	for _, crate := range ws.Crates {
		if res.CrateID == "" {
			res.CrateID = crate.Name
		}
		ns := idgen.CrateNamespace(crate.Name, crate.Version)
		for _, file := range crate.Files {
			content, err := os.ReadFile(file) //nolint:gosec // G304: file comes from workspace discovery, not external input
			if err != nil {
				res.FilesFailed++
				logger.Warn("pipeline.read.error", "file", file, "err", err)
				continue
			}

			g, err := parser.ParseFile(ctx, ns, file, content)
			if err != nil {
				res.FilesFailed++
				logger.Warn("pipeline.parse.error", "file", file, "err", err)
				continue
			}
			res.FilesParsed++

			if errs := tree.AddGraph(g); len(errs) > 0 {
				res.ResolutionErrors += len(errs)
				for _, e := range errs {
					logger.Debug("pipeline.moduletree.add.error", "file", file, "err", e)
				}
			}
			graphs = append(graphs, g)
			hashes = append(hashes, filehash.HashBytes(content))
		}
	}
	res.ParseDuration = time.Since(parseStart)

	for _, e := range tree.LinkDeclarations() {
		res.ResolutionErrors++
		logger.Debug("pipeline.moduletree.link.error", "err", e)
	}
	for _, e := range tree.BuildPathIndex() {
		res.ResolutionErrors++
		logger.Debug("pipeline.moduletree.path.error", "err", e)
	}
	extraEdges, reErrs := tree.ResolveReExportChains()
	for _, e := range reErrs {
		res.ResolutionErrors++
		logger.Debug("pipeline.moduletree.reexport.error", "err", e)
	}

	tr := transform.New()
	batcher := transform.NewBatcher(500, transform.DefaultSoftLimitBytes)

	writeStart := time.Now()
	var statements []string
	for i, g := range graphs {
		statements = append(statements, tr.Statements(g, nil, hashes[i])...)
	}
	statements = append(statements, tr.Statements(&graph.PartialGraph{}, extraEdges, filehash.Size{})...)

	batches, err := batcher.Batch(statements)
	if err != nil {
		return nil, fmt.Errorf("batch statements: %w", err)
	}
	for i, script := range batches {
		if _, err := s.Query(ctx, script, nil); err != nil {
			return nil, fmt.Errorf("write batch %d/%d: %w", i+1, len(batches), err)
		}
	}
	res.StatementsWritten = len(statements)
	res.WriteDuration = time.Since(writeStart)

	embedStart := time.Now()
	relation, err := s.CreateVectorRelation(embedder.Model(), embedder.Dims())
	if err != nil {
		logger.Warn("pipeline.vector_relation.warning", "err", err)
	} else if err := s.CreateHNSWIndex(relation, embedder.Dims(), cfg.Rag.HNSWM, 64); err != nil {
		logger.Warn("pipeline.hnsw.warning", "err", err)
	}

	ioActor := ioactor.New(ioactor.Config{FDLimitOverride: cfg.Performance.IOFDLimit})
	if err := ioActor.UpdateRoots([]string{repoRoot}, ioactor.SymlinkPolicyDeny); err != nil {
		return nil, fmt.Errorf("update io roots: %w", err)
	}
	src := indexer.NewStoreSource(s, relation, embedder.Dims())
	sink := indexer.NewStoreSink(s)

	ix := indexer.New(indexer.Config{
		Source:    src,
		Sink:      sink,
		Embedder:  embedder,
		IO:        ioActor,
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
	})
	if err := ix.Run(ctx); err != nil {
		return nil, fmt.Errorf("embed pass: %w", err)
	}
	res.EmbedDuration = time.Since(embedStart)
	res.TotalDuration = time.Since(start)

	return res, nil
}

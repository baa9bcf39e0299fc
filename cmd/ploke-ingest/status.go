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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/josephleblanc/ploke-ingest/internal/output"
	"github.com/josephleblanc/ploke-ingest/internal/ui"
	"github.com/josephleblanc/ploke-ingest/pkg/store"
)

// StatusResult represents the crate index status for JSON output.
type StatusResult struct {
	CrateID    string    `json:"crate_id"`
	DataDir    string    `json:"data_dir"`
	Connected  bool      `json:"connected"`
	Modules    int       `json:"modules"`
	Functions  int       `json:"functions"`
	Structs    int       `json:"structs"`
	Enums      int       `json:"enums"`
	Traits     int       `json:"traits"`
	Impls      int       `json:"impls"`
	Imports    int       `json:"imports"`
	Embeddings int       `json:"embeddings"`
	SyntaxEdges int      `json:"syntax_edges"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying crate index
// statistics.
//
// It queries the local CozoDB database to count indexed modules,
// functions, types, embeddings, and syntax edges, helping users verify
// that indexing completed successfully.
//
// Flags:
//   - --json: Output results as JSON (default: false)
//
// Examples:
//
//	ploke-ingest status           Display formatted status
//	ploke-ingest status --json    Output as JSON for programmatic use
func runStatus(args []string, crateRoot string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke-ingest status [options]

Shows local crate index status.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if crateRoot == "" {
		var err error
		crateRoot, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
			os.Exit(1)
		}
	}
	crateID := filepath.Base(crateRoot)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		if *jsonOutput {
			outputStatusJSON(&StatusResult{CrateID: crateID, Connected: false, Error: err.Error(), Timestamp: time.Now()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	dataDir := filepath.Join(homeDir, ".ploke-ingest", "data", crateID)

	result := &StatusResult{CrateID: crateID, DataDir: dataDir, Timestamp: time.Now()}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		result.Connected = false
		result.Error = "Crate not indexed yet. Run 'ploke-ingest index' first."
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Printf("Crate '%s' not indexed yet.\n", crateID)
			fmt.Println("Run 'ploke-ingest index' to index the crate.")
		}
		os.Exit(0)
	}

	s, err := store.Open(store.Config{DataDir: dataDir, Engine: "rocksdb", CrateID: crateID})
	if err != nil {
		result.Connected = false
		result.Error = fmt.Sprintf("cannot open database: %v", err)
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Fprintf(os.Stderr, "Error: cannot open database: %v\n", err)
		}
		os.Exit(1)
	}
	defer func() { _ = s.Close() }()

	result.Connected = true
	ctx := context.Background()

	result.Modules = queryLocalCount(ctx, s, "module", "id")
	result.Functions = queryLocalCount(ctx, s, "function", "id")
	result.Structs = queryLocalCount(ctx, s, "struct", "id")
	result.Enums = queryLocalCount(ctx, s, "enum", "id")
	result.Traits = queryLocalCount(ctx, s, "trait", "id")
	result.Impls = queryLocalCount(ctx, s, "impl", "id")
	result.Imports = queryLocalCount(ctx, s, "import", "id")
	result.SyntaxEdges = queryLocalCount(ctx, s, "syntax_edge", "source_id")
	result.Embeddings = queryEmbeddingCount(ctx, s)

	if *jsonOutput {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result)
	}
}

// queryLocalCount runs a count query against one of the Store's primary
// relations, returning 0 if the query fails or the relation is empty.
func queryLocalCount(ctx context.Context, s *store.Store, relation, pkField string) int {
	script := fmt.Sprintf("?[count(%s)] := *%s { %s }", pkField, relation, pkField)
	result, err := s.Query(ctx, script, nil)
	if err != nil {
		return 0
	}
	return firstRowCount(result)
}

// queryEmbeddingCount sums row counts across every relation registered in
// embedding_set, since each (model, dims) pair gets its own vector relation.
func queryEmbeddingCount(ctx context.Context, s *store.Store) int {
	script := `?[relation_name] := *embedding_set{relation_name}`
	result, err := s.Query(ctx, script, nil)
	if err != nil {
		return 0
	}
	total := 0
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		relation, ok := row[0].(string)
		if !ok {
			continue
		}
		total += queryLocalCount(ctx, s, relation, "node_id")
	}
	return total
}

func firstRowCount(result *store.QueryResult) int {
	if result == nil || len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return 0
	}
	switch v := result.Rows[0][0].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// outputStatusJSON writes the status result as formatted JSON to stdout.
func outputStatusJSON(result *StatusResult) {
	if err := output.JSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot encode status: %v\n", err)
	}
}

// printLocalStatus prints the status result as formatted text to stdout.
func printLocalStatus(result *StatusResult) {
	ui.Header("ploke-ingest Crate Status")
	fmt.Printf("Crate ID:    %s\n", result.CrateID)
	fmt.Printf("Data Dir:    %s\n", ui.DimText(result.DataDir))
	fmt.Println()

	ui.SubHeader("Entities:")
	fmt.Printf("  Modules:      %s\n", ui.CountText(result.Modules))
	fmt.Printf("  Functions:    %s\n", ui.CountText(result.Functions))
	fmt.Printf("  Structs:      %s\n", ui.CountText(result.Structs))
	fmt.Printf("  Enums:        %s\n", ui.CountText(result.Enums))
	fmt.Printf("  Traits:       %s\n", ui.CountText(result.Traits))
	fmt.Printf("  Impls:        %s\n", ui.CountText(result.Impls))
	fmt.Printf("  Imports:      %s\n", ui.CountText(result.Imports))
	fmt.Printf("  Syntax Edges: %s\n", ui.CountText(result.SyntaxEdges))
	fmt.Printf("  Embeddings:   %s\n", ui.CountText(result.Embeddings))

	if result.Error != "" {
		ui.Warning(result.Error)
	}
}

// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/josephleblanc/ploke-ingest/internal/output"
	"github.com/josephleblanc/ploke-ingest/pkg/store"
)

func runQuery(args []string, crateRoot string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")
	limit := fs.Int("limit", 0, "Add :limit to query (0 = no limit)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke-ingest query [options] <cozoscript>

Executes a CozoScript query against the local index.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # List all functions
  ploke-ingest query --limit 10 "?[name, file_path] := *function { name, file_path }"

  # Search by name
  ploke-ingest query "?[name, file_path] := *function { name, file_path }, regex_matches(name, '(?i)embed')"

  # Count structs
  ploke-ingest query "?[count(id)] := *struct { id }"

  # Follow a syntax edge
  ploke-ingest query "?[target_id] := *syntax_edge { source_id, target_id, kind: 'Calls' }, *function { id: source_id, name: 'run' }"

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: script argument required\n")
		fs.Usage()
		os.Exit(1)
	}

	script := fs.Arg(0)
	if *limit > 0 {
		script = strings.TrimSpace(script)
		if !strings.Contains(strings.ToLower(script), ":limit") {
			script = fmt.Sprintf("%s :limit %d", script, *limit)
		}
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
			outputQueryError(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	dataDir := filepath.Join(homeDir, ".ploke-ingest", "data", crateID)

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		err := fmt.Errorf("crate '%s' not indexed yet. Run 'ploke-ingest index' first", crateID)
		if *jsonOutput {
			outputQueryError(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	s, err := store.Open(store.Config{DataDir: dataDir, Engine: "rocksdb", CrateID: crateID})
	if err != nil {
		if *jsonOutput {
			outputQueryError(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: cannot open database: %v\n", err)
		}
		os.Exit(1)
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := s.Query(ctx, script, nil)
	if err != nil {
		if *jsonOutput {
			outputQueryError(err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: query failed: %v\n", err)
		}
		os.Exit(1)
	}

	if *jsonOutput {
		outputQueryJSON(result)
	} else {
		printQueryResult(result)
	}
}

func outputQueryError(err error) {
	_ = output.JSON(map[string]any{"error": err.Error()})
}

func outputQueryJSON(result *store.QueryResult) {
	_ = output.JSON(map[string]any{
		"headers": result.Headers,
		"rows":    result.Rows,
		"count":   len(result.Rows),
	})
}

func printQueryResult(result *store.QueryResult) {
	if len(result.Rows) == 0 {
		fmt.Println("No results")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for i, h := range result.Headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, strings.ToUpper(h))
	}
	fmt.Fprintln(w)

	for i := range result.Headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, "---")
	}
	fmt.Fprintln(w)

	for _, row := range result.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatCell(cell))
		}
		fmt.Fprintln(w)
	}

	_ = w.Flush()

	fmt.Printf("\n(%d rows)\n", len(result.Rows))
}

func formatCell(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 60 {
			return val[:57] + "..."
		}
		return val
	case float64:
		if val == float64(int(val)) {
			return fmt.Sprintf("%d", int(val))
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return "<null>"
	default:
		s := fmt.Sprintf("%v", val)
		if len(s) > 60 {
			return s[:57] + "..."
		}
		return s
	}
}

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

// Package main implements the ploke-ingest CLI for indexing Rust crates
// into a local CozoDB-backed code graph and querying it.
//
// Usage:
//
//	ploke-ingest init                      Create .ploke-ingest/project.yaml
//	ploke-ingest index                     Index the current crate/workspace
//	ploke-ingest status [--json]           Show crate index status
//	ploke-ingest query [--json] <script>   Execute a CozoScript query
//	ploke-ingest reset --yes               Delete the local index
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/josephleblanc/ploke-ingest/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are flags recognized before the subcommand name.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to crate root (default: current directory)")
		jsonOutput  = flag.Bool("json", false, "Output as JSON where supported")
		quiet       = flag.Bool("quiet", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ploke-ingest - Rust code intelligence ingestion engine

Usage:
  ploke-ingest <command> [options]

Commands:
  init          Create .ploke-ingest/project.yaml configuration
  index         Parse and embed the current crate/workspace
  status        Show local index status
  query         Execute a CozoScript query against the local index
  reset         Delete local index data (destructive!)
  completion    Generate shell completion script

Global Options:
  --config      Path to the crate/workspace root (default: cwd)
  --json        Output as JSON where supported
  --quiet       Suppress progress bars
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  ploke-ingest init
  ploke-ingest index
  ploke-ingest status --json
  ploke-ingest query --limit 10 "?[name] := *function{name}"

Data Storage:
  Data is stored locally in ~/.ploke-ingest/data/<crate_id>/

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("ploke-ingest version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{JSON: *jsonOutput, Quiet: *quiet || *jsonOutput, NoColor: *noColor}
	ui.InitColors(globals.NoColor || globals.JSON)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "index":
		runIndex(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "query":
		runQuery(cmdArgs, *configPath)
	case "reset":
		runReset(cmdArgs, *configPath)
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

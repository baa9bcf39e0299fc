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
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephleblanc/ploke-ingest/pkg/config"
)

// runInit executes the 'init' CLI command, creating a
// .ploke-ingest/project.yaml configuration file.
//
// Flags:
//   - --force: Overwrite existing configuration (default: false)
//   - -y: Non-interactive mode, use all defaults (default: false)
//   - --embedding-provider: Embedding provider (ollama, nomic, mock)
//
// Examples:
//
//	ploke-ingest init                 Interactive setup
//	ploke-ingest init -y              Use all defaults
func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")
	nonInteractive := fs.Bool("y", false, "Non-interactive mode (use defaults)")
	embeddingProvider := fs.String("embedding-provider", "", "Embedding provider (ollama, nomic, mock)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke-ingest init [options]

Creates .ploke-ingest/project.yaml configuration file.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	configPath := filepath.Join(cwd, config.ConfigDirName, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Use --force to overwrite.\n", configPath)
		os.Exit(1)
	}

	cfg := config.Default()
	if *embeddingProvider != "" {
		cfg.Embedding.Provider = *embeddingProvider
	}

	if !*nonInteractive {
		reader := bufio.NewReader(os.Stdin)
		fmt.Println("ploke-ingest Crate Configuration")
		fmt.Println("================================")
		fmt.Println()
		fmt.Println("Embedding Providers: ollama, nomic, mock")
		cfg.Embedding.Provider = prompt(reader, "Embedding provider", cfg.Embedding.Provider)
		if cfg.Embedding.Provider == "ollama" {
			cfg.Embedding.BaseURL = prompt(reader, "Ollama URL", "http://localhost:11434")
			cfg.Embedding.Model = prompt(reader, "Embedding model", "nomic-embed-text")
		}
		fmt.Println()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.WriteYAML(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot save configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", configPath)
	addToGitignore(cwd)

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit .ploke-ingest/project.yaml if needed")
	fmt.Println("  2. Run 'ploke-ingest index' to index your crate")
	fmt.Println("  3. Run 'ploke-ingest status' to verify indexing")
}

// prompt displays an interactive prompt and reads user input from stdin,
// returning defaultValue when the user presses Enter without typing.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

// addToGitignore adds .ploke-ingest/ to the project's .gitignore file if
// not already present. Silently returns if .gitignore doesn't exist.
func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}

	lines := strings.Split(string(content), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == ".ploke-ingest/" || line == ".ploke-ingest" {
			return
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString("\n# ploke-ingest configuration\n.ploke-ingest/\n")
	fmt.Println("Added .ploke-ingest/ to .gitignore")
}

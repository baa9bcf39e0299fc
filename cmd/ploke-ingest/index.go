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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josephleblanc/ploke-ingest/internal/bootstrap"
	"github.com/josephleblanc/ploke-ingest/internal/pipeline"
	"github.com/josephleblanc/ploke-ingest/internal/ui"
	"github.com/josephleblanc/ploke-ingest/pkg/config"
)

// runIndex executes the 'index' CLI command, parsing and embedding the
// current crate or workspace.
//
// Flags:
//   - --full: Force full reindex, deleting any existing local data first
//   - --debug: Enable debug logging
//   - --metrics-addr: HTTP address for Prometheus metrics (empty disables)
//
// Examples:
//
//	ploke-ingest index                  Incremental index
//	ploke-ingest index --full           Delete local data and reindex
func runIndex(args []string, crateRoot string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	full := fs.Bool("full", false, "Delete existing local data and reindex from scratch")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ploke-ingest index [options]

Indexes the current crate/workspace using .ploke-ingest/project.yaml.
Data is stored locally in ~/.ploke-ingest/data/<crate_id>/

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

	cfg, err := config.Load(crateRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	crateID := filepath.Base(crateRoot)

	if *full {
		homeDir, _ := os.UserHomeDir()
		dataDir := filepath.Join(homeDir, ".ploke-ingest", "data", crateID)
		if err := os.RemoveAll(dataDir); err == nil {
			logger.Info("data.deleted", "path", dataDir)
		} else if !os.IsNotExist(err) {
			logger.Warn("data.delete.error", "path", dataDir, "err", err)
		}
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	info, err := bootstrap.InitCrate(bootstrap.CrateConfig{
		CrateID:             crateID,
		Engine:              cfg.Store.Engine,
		EmbeddingModel:      cfg.Embedding.Model,
		EmbeddingDimensions: cfg.Embedding.Dims,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot initialize crate: %v\n", err)
		os.Exit(1)
	}

	s, err := bootstrap.OpenCrate(bootstrap.CrateConfig{CrateID: crateID, Engine: cfg.Store.Engine}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open crate: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = s.Close() }()

	embedder, err := pipeline.NewEmbedder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot build embedder: %v\n", err)
		os.Exit(1)
	}

	logger.Info("indexing.starting", "crate_id", crateID, "crate_root", crateRoot, "embedding_provider", cfg.Embedding.Provider)

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, phaseDescription("parsing"))
	if spinner != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					_ = spinner.Finish()
					return
				case <-ticker.C:
					_ = spinner.Add(1)
				}
			}
		}()
	}

	result, err := pipeline.Run(ctx, s, embedder, cfg, crateRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: indexing failed: %v\n", err)
		os.Exit(1)
	}

	printResult(result, info.DataDir)
}

// printResult prints the indexing result summary to stdout.
func printResult(result *pipeline.Result, dataDir string) {
	fmt.Println()
	ui.Success("Indexing complete")
	fmt.Printf("Crate ID: %s\n", result.CrateID)
	fmt.Printf("Files Parsed: %s\n", ui.CountText(result.FilesParsed))
	if result.FilesFailed > 0 {
		ui.Warningf("Files Failed: %d", result.FilesFailed)
	}
	fmt.Printf("Statements Written: %s\n", ui.CountText(result.StatementsWritten))
	if result.ResolutionErrors > 0 {
		ui.Warningf("Resolution Errors: %d", result.ResolutionErrors)
	}

	fmt.Println("\nTimings:")
	fmt.Printf("  Parse: %s\n", result.ParseDuration)
	fmt.Printf("  Write: %s\n", result.WriteDuration)
	fmt.Printf("  Embed: %s\n", result.EmbedDuration)
	fmt.Printf("  Total: %s\n", result.TotalDuration)
	fmt.Println()

	fmt.Printf("Data stored in: %s\n", dataDir)
}

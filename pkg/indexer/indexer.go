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

// Package indexer runs a cooperative embed-and-persist pass over nodes a
// Store hasn't vectorised yet. It pulls pending nodes in deterministic
// chunks, resolves their source snippets via an IoActor, embeds them in
// bounded batches, and writes the resulting vectors back, reporting
// progress and honouring Pause/Resume/Cancel at batch boundaries.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/josephleblanc/ploke-ingest/pkg/embed"
	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/ioactor"
)

// DefaultBatchSize bounds the Embedder input batch, amortising
// tokenisation and limiting memory, per the embedding contract.
const DefaultBatchSize = 8

// State is a position in the indexer's cooperative state machine.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Command is sent on the indexer's command channel to drive a
// transition.
type Command uint8

const (
	CmdPause Command = iota
	CmdResume
	CmdCancel
)

// ProgressEvent is published as the run advances.
type ProgressEvent struct {
	State     State
	Processed int
	Total     int
	Err       error
}

// PendingNode names one node awaiting embedding. FileHash is the node's
// file_hash as recorded at ingestion time; a non-zero value is passed to
// the IoActor as ExpectedHash so a file edited since indexing is
// reported as changed rather than embedded from stale content.
type PendingNode struct {
	ID       graph.AnyNodeId
	FilePath string
	Span     graph.Span
	FileHash filehash.Size
}

// Source yields nodes that still need an embedding, in a deterministic
// order, and reports the total outstanding count for progress events.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]PendingNode, error)
	Total(ctx context.Context) (int, error)
}

// Sink persists a batch's resulting vectors and records batches that
// failed embedding so a later run can retry just those nodes.
type Sink interface {
	WriteVectors(ctx context.Context, model string, dims int, nodes []PendingNode, vectors [][]float32) error
	MarkFailed(ctx context.Context, nodes []PendingNode, reason string) error
}

// Config wires an Indexer's collaborators and tunables.
type Config struct {
	Source    Source
	Sink      Sink
	Embedder  embed.Embedder
	IO        *ioactor.Actor
	BatchSize int
	Logger    *slog.Logger
}

// Indexer runs one embed/persist pass per Run call, driven by a command
// channel and reporting a progress channel. A fresh Indexer must be built
// per run; it is not restartable once Completed/Cancelled/Failed.
type Indexer struct {
	src       Source
	sink      Sink
	embedder  embed.Embedder
	io        *ioactor.Actor
	batchSize int
	logger    *slog.Logger

	cmd      chan Command
	progress chan ProgressEvent

	state State
}

// New builds an Indexer in StateIdle.
func New(cfg Config) *Indexer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		src:       cfg.Source,
		sink:      cfg.Sink,
		embedder:  cfg.Embedder,
		io:        cfg.IO,
		batchSize: batchSize,
		logger:    logger,
		cmd:       make(chan Command, 1),
		progress:  make(chan ProgressEvent, 8),
		state:     StateIdle,
	}
}

// Commands returns the channel callers send {Pause,Resume,Cancel} on.
func (ix *Indexer) Commands() chan<- Command { return ix.cmd }

// Progress returns the channel Run publishes ProgressEvents on. Callers
// should drain it concurrently with Run to avoid blocking the indexer
// (the channel is buffered, but a slow consumer can still stall it).
func (ix *Indexer) Progress() <-chan ProgressEvent { return ix.progress }

// State reports the indexer's current position in the state machine.
func (ix *Indexer) State() State { return ix.state }

// Run drives the indexer to completion, cancellation, or failure,
// pulling pending nodes in DefaultBatchSize-or-configured chunks until
// the Source reports none remain. It honours commands at batch
// boundaries only; in-flight IoActor reads and Embedder calls are
// allowed to finish.
func (ix *Indexer) Run(ctx context.Context) error {
	metrics.init()
	ix.state = StateRunning
	total, err := ix.src.Total(ctx)
	if err != nil {
		return ix.fail(fmt.Errorf("count pending: %w", err))
	}

	processed := 0
	ix.publish(ProgressEvent{State: StateRunning, Processed: processed, Total: total})

	for {
		if gate := ix.checkCommands(ctx); gate != nil {
			return gate
		}
		if ix.state == StateCancelled {
			ix.publish(ProgressEvent{State: StateCancelled, Processed: processed, Total: total})
			return nil
		}

		nodes, err := ix.src.FetchPending(ctx, ix.batchSize)
		if err != nil {
			return ix.fail(fmt.Errorf("fetch pending: %w", err))
		}
		if len(nodes) == 0 {
			break
		}

		batchStart := time.Now()
		if err := ix.processBatch(ctx, nodes); err != nil {
			ix.logger.Warn("indexer.batch.failed", "count", len(nodes), "error", err)
			_ = ix.sink.MarkFailed(ctx, nodes, err.Error())
			metrics.nodesFailed.Add(float64(len(nodes)))
		} else {
			metrics.nodesEmbedded.Add(float64(len(nodes)))
		}
		metrics.batchesRun.Inc()
		metrics.embedDuration.Observe(time.Since(batchStart).Seconds())

		processed += len(nodes)
		ix.publish(ProgressEvent{State: StateRunning, Processed: processed, Total: total})
	}

	ix.state = StateCompleted
	ix.publish(ProgressEvent{State: StateCompleted, Processed: processed, Total: total})
	return nil
}

// processBatch resolves snippets, embeds them, and persists the vectors.
// A failure here is reported by the caller via MarkFailed and does not
// abort the run, per the indexer's partial-failure contract.
func (ix *Indexer) processBatch(ctx context.Context, nodes []PendingNode) error {
	reqs := make([]ioactor.SnippetRequest, len(nodes))
	for i, n := range nodes {
		reqs[i] = ioactor.SnippetRequest{
			Path:         n.FilePath,
			StartByte:    n.Span.StartByte,
			EndByte:      n.Span.EndByte,
			ExpectedHash: n.FileHash,
		}
	}
	results := ix.io.ReadSnippets(ctx, reqs)

	texts := make([]string, len(nodes))
	for i, r := range results {
		if r.Err != nil {
			return fmt.Errorf("read snippet for %s: %w", nodes[i].ID, r.Err)
		}
		texts[i] = string(r.Bytes)
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	return ix.sink.WriteVectors(ctx, ix.embedder.Model(), ix.embedder.Dims(), nodes, vectors)
}

// checkCommands drains any pending command without blocking, except when
// paused: a paused indexer blocks here until Resume or Cancel arrives,
// modelling suspension as a channel receive rather than a busy-poll.
func (ix *Indexer) checkCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ix.fail(ctx.Err())
		case cmd := <-ix.cmd:
			switch cmd {
			case CmdPause:
				ix.state = StatePaused
				ix.publish(ProgressEvent{State: StatePaused})
			case CmdResume:
				if ix.state == StatePaused {
					ix.state = StateRunning
				}
			case CmdCancel:
				ix.state = StateCancelled
				return nil
			}
		default:
			if ix.state != StatePaused {
				return nil
			}
			// Paused: block for the next command rather than spin.
			select {
			case <-ctx.Done():
				return ix.fail(ctx.Err())
			case cmd := <-ix.cmd:
				switch cmd {
				case CmdResume:
					ix.state = StateRunning
				case CmdCancel:
					ix.state = StateCancelled
					return nil
				case CmdPause:
				}
			}
		}
	}
}

func (ix *Indexer) fail(err error) error {
	ix.state = StateFailed
	ix.publish(ProgressEvent{State: StateFailed, Err: err})
	return err
}

func (ix *Indexer) publish(evt ProgressEvent) {
	select {
	case ix.progress <- evt:
	default:
	}
}

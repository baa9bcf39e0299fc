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
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/embed"
	"github.com/josephleblanc/ploke-ingest/pkg/graph"
	"github.com/josephleblanc/ploke-ingest/pkg/ioactor"
)

// fakeSource hands out a fixed node list across successive FetchPending
// calls, batchSize at a time, then returns empty.
type fakeSource struct {
	mu    sync.Mutex
	nodes []PendingNode
}

func (f *fakeSource) Total(ctx context.Context) (int, error) {
	return len(f.nodes), nil
}

func (f *fakeSource) FetchPending(ctx context.Context, limit int) ([]PendingNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.nodes) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.nodes) {
		n = len(f.nodes)
	}
	batch := f.nodes[:n]
	f.nodes = f.nodes[n:]
	return batch, nil
}

type fakeSink struct {
	mu      sync.Mutex
	written int
	failed  int
}

func (f *fakeSink) WriteVectors(ctx context.Context, model string, dims int, nodes []PendingNode, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written += len(nodes)
	return nil
}

func (f *fakeSink) MarkFailed(ctx context.Context, nodes []PendingNode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed += len(nodes)
	return nil
}

func makeNodes(n int, path string) []PendingNode {
	out := make([]PendingNode, n)
	for i := range out {
		out[i] = PendingNode{ID: graph.AnyNodeId{Kind: graph.KindFunction, UUID: uuid.New()}, FilePath: path, Span: graph.Span{StartByte: 0, EndByte: 3}}
	}
	return out
}

func newTestIndexer(t *testing.T, src Source, sink Sink) *Indexer {
	t.Helper()
	return New(Config{
		Source:    src,
		Sink:      sink,
		Embedder:  embed.NewMockEmbedder(8),
		IO:        ioactor.New(ioactor.Config{FDLimitOverride: 4}),
		BatchSize: 2,
	})
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/f.rs"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexer_RunCompletesAndReportsProgress(t *testing.T) {
	path := writeTestFile(t, "fn ")
	src := &fakeSource{nodes: makeNodes(5, path)}
	sink := &fakeSink{}
	ix := newTestIndexer(t, src, sink)

	done := make(chan error, 1)
	go func() { done <- ix.Run(context.Background()) }()

	var lastEvt ProgressEvent
	for evt := range drainUntilTerminal(t, ix.Progress(), done) {
		lastEvt = evt
	}

	require.Equal(t, StateCompleted, ix.State())
	require.Equal(t, StateCompleted, lastEvt.State)
	require.Equal(t, 5, sink.written)
}

func TestIndexer_CancelStopsBeforeExhaustingSource(t *testing.T) {
	path := writeTestFile(t, "fn ")
	src := &fakeSource{nodes: makeNodes(100, path)}
	sink := &fakeSink{}
	ix := newTestIndexer(t, src, sink)

	ix.Commands() <- CmdCancel

	err := ix.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, ix.State())
	require.Less(t, sink.written, 100)
}

func TestIndexer_EmptySourceCompletesImmediately(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{}
	ix := newTestIndexer(t, src, sink)

	require.NoError(t, ix.Run(context.Background()))
	require.Equal(t, StateCompleted, ix.State())
}

// drainUntilTerminal reads progress events until Run's error channel
// fires, then closes the returned channel.
func drainUntilTerminal(t *testing.T, progress <-chan ProgressEvent, done <-chan error) <-chan ProgressEvent {
	t.Helper()
	out := make(chan ProgressEvent, 64)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-progress:
				out <- evt
			case err := <-done:
				require.NoError(t, err)
				for {
					select {
					case evt := <-progress:
						out <- evt
					default:
						return
					}
				}
			}
		}
	}()
	return out
}

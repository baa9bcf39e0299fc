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

// Package store wraps the embedded Datalog engine: schema DDL, scripted
// queries with validity semantics, mutation callbacks, and backup/restore.
// Reads share a read lock, so they run concurrently with each other and
// wait for writes; writes are serialised through the same mutex since
// cozodb.DB is not safe for concurrent mutation from multiple goroutines.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/josephleblanc/ploke-ingest/pkg/cozodb"
)

// QueryResult is the Go-side projection of an engine response.
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

func fromNamedRows(nr cozodb.NamedRows) *QueryResult {
	return &QueryResult{Headers: nr.Headers, Rows: nr.Rows}
}

// Config configures the embedded store.
type Config struct {
	// DataDir is where the engine persists its files; ignored for "mem".
	// Defaults to ~/.ploke-ingest/data/<CrateID>.
	DataDir string

	// Engine selects the storage backend: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb".
	Engine string

	// CrateID namespaces DataDir when DataDir is left to its default.
	CrateID string
}

// Store is the embedded engine handle. After a successful write, Execute
// publishes the resulting rows to the callbacks registered for the
// relation its caller names; the schema, vector-relation and restore
// methods publish nothing.
type Store struct {
	db       *cozodb.DB
	mu       sync.RWMutex
	closed   bool
	callback *CallbackManager
}

// Open creates the data directory (if needed) and opens the engine.
func Open(cfg Config) (*Store, error) {
	if cfg.Engine == "" {
		cfg.Engine = "rocksdb"
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".ploke-ingest", "data")
		if cfg.CrateID != "" {
			cfg.DataDir = filepath.Join(cfg.DataDir, cfg.CrateID)
		}
	}
	if cfg.Engine != "mem" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := cozodb.New(cfg.Engine, cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{db: db, callback: newCallbackManager()}, nil
}

// Query runs a read-only script; the engine rejects any mutation it
// contains.
func (s *Store) Query(ctx context.Context, script string, params map[string]any) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.db.RunReadOnly(script, params)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return fromNamedRows(res), nil
}

// Execute runs a mutating script and fans out the resulting rows to any
// callbacks registered against relation; the script itself is not
// inspected for the relations it writes.
func (s *Store) Execute(ctx context.Context, relation, script string, params map[string]any) (*QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.db.Run(script, params)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	qr := fromNamedRows(res)
	s.callback.publish(MutationEvent{Relation: relation, Headers: qr.Headers, Rows: qr.Rows})
	return qr, nil
}

// Subscribe registers ch to receive every MutationEvent published against
// relation ("" subscribes to all relations). The returned func
// unregisters ch; it is safe to call more than once.
func (s *Store) Subscribe(relation string, ch chan<- MutationEvent) func() {
	return s.callback.register(relation, ch)
}

// Backup exports the full database to outPath.
func (s *Store) Backup(outPath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return s.db.Backup(outPath)
}

// Restore replaces the database's contents from a prior Backup.
func (s *Store) Restore(inPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return s.db.Restore(inPath)
}

// Close closes the underlying engine. Calling Close twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.db.Close()
	return nil
}

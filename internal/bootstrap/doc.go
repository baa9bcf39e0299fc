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

// Package bootstrap handles ploke-ingest crate initialization and setup.
//
// This internal package provides the core initialization logic for a
// crate's index: it opens (creating if absent) the CozoDB-backed Store,
// ensures schema, and builds the HNSW index for whatever embedding
// dimensionality the crate is configured for.
//
// # Initialization Workflow
//
//	info, err := bootstrap.InitCrate(bootstrap.CrateConfig{
//	    CrateID: "my-crate",
//	    Engine:  "rocksdb", // Optional: defaults to rocksdb
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Crate initialized at: %s\n", info.DataDir)
//
//	s, err := bootstrap.OpenCrate(bootstrap.CrateConfig{CrateID: "my-crate"}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
// # Idempotency
//
// InitCrate is idempotent: calling it multiple times on the same crate
// is safe and will not corrupt existing data.
//
// # Configuration
//
// CrateConfig controls initialization:
//
//   - CrateID: Required. Logical identifier for the crate being indexed.
//   - DataDir: Optional. Defaults to ~/.ploke-ingest/data/<crate_id>.
//   - Engine: Optional. One of "mem", "sqlite", "rocksdb"; defaults to
//     "rocksdb".
//   - EmbeddingDimensions: Optional. Vector size for the HNSW index;
//     the index is skipped when this is zero or EmbeddingModel is empty.
//
// # Crate Discovery
//
//	crates, err := bootstrap.ListCrates()
//	for _, id := range crates {
//	    fmt.Println(id)
//	}
package bootstrap

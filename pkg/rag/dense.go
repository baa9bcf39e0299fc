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

package rag

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// DenseIndex is an in-memory approximate nearest-neighbour index over
// node embeddings, kept alongside (not instead of) the Store's own Cozo
// HNSW relation: it lets Rag serve a query without round-tripping every
// candidate through Datalog, and gives the fusion stage a rank list it
// can merge with the sparse index's.
type DenseIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dims  int
}

// NewDenseIndex builds an empty dense index for vectors of the given
// dimensionality, scored by cosine similarity.
func NewDenseIndex(dims int) *DenseIndex {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &DenseIndex{graph: graph, dims: dims}
}

// Add inserts or replaces the vector for id.
func (d *DenseIndex) Add(id string, vector []float32) error {
	if len(vector) != d.dims {
		return fmt.Errorf("dense index: dimension mismatch: want %d, got %d", d.dims, len(vector))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph.Add(hnsw.MakeNode(id, normalizeVector(vector)))
	return nil
}

// Search returns up to k nearest neighbours to query, ranked nearest
// first, with Score set to a [0,1] cosine similarity (1 - distance/2).
func (d *DenseIndex) Search(query []float32, k int) ([]ScoredID, error) {
	if len(query) != d.dims {
		return nil, fmt.Errorf("dense index: dimension mismatch: want %d, got %d", d.dims, len(query))
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.graph.Len() == 0 {
		return nil, nil
	}
	normalizedQuery := normalizeVector(query)
	nodes := d.graph.Search(normalizedQuery, k)
	out := make([]ScoredID, 0, len(nodes))
	for _, n := range nodes {
		dist := d.graph.Distance(normalizedQuery, n.Value)
		out = append(out, ScoredID{ID: n.Key, Score: 1.0 - dist/2.0})
	}
	return out, nil
}

// Len reports how many vectors are indexed.
func (d *DenseIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph.Len()
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}

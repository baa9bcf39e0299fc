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

package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_NormalizesAndPreservesDims(t *testing.T) {
	m := NewMockEmbedder(64)
	vecs, err := m.Embed(context.Background(), []string{"fn main() {}"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 64)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 0.01)
}

func TestMockEmbedder_DeterministicAcrossCalls(t *testing.T) {
	m := NewMockEmbedder(32)
	a, err := m.Embed(context.Background(), []string{"struct Point { x: f64 }"})
	require.NoError(t, err)
	b, err := m.Embed(context.Background(), []string{"struct Point { x: f64 }"})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestMockEmbedder_PreservesBatchOrder(t *testing.T) {
	m := NewMockEmbedder(16)
	batch := []string{"alpha", "beta", "gamma"}
	vecs, err := m.Embed(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	solo, err := m.Embed(context.Background(), []string{"beta"})
	require.NoError(t, err)
	require.Equal(t, solo[0], vecs[1])
}

func TestMockEmbedder_EmptyBatchIsError(t *testing.T) {
	m := NewMockEmbedder(16)
	_, err := m.Embed(context.Background(), nil)
	require.Error(t, err)
	var embedErr *Error
	require.ErrorAs(t, err, &embedErr)
	require.Equal(t, FailureEmptyBatch, embedErr.Kind)
}

func TestPadAndTruncate_PadsToMultipleOfEight(t *testing.T) {
	toks := [][]int{{1, 2, 3}}
	padded, mask := padAndTruncate(toks, DefaultMaxTokens)
	require.Len(t, padded[0], 8)
	require.Equal(t, []float32{1, 1, 1, 0, 0, 0, 0, 0}, mask[0])
}

func TestPadAndTruncate_TruncatesAtMaxTokens(t *testing.T) {
	long := make([]int, 300)
	padded, mask := padAndTruncate([][]int{long}, 256)
	require.Len(t, padded[0], 256)
	require.Len(t, mask[0], 256)
	for _, m := range mask[0] {
		require.Equal(t, float32(1), m)
	}
}

func TestMeanPool_IgnoresMaskedPositions(t *testing.T) {
	toks := [][]float32{{1, 1}, {99, 99}}
	mask := []float32{1, 0}
	pooled := meanPool(toks, mask)
	require.Equal(t, []float32{1, 1}, pooled)
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	require.Equal(t, v, normalize(v))
}

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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDenseIndex_SearchFindsNearestNeighbour(t *testing.T) {
	idx := NewDenseIndex(3)
	require.NoError(t, idx.Add("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Add("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Add("c", []float32{0.9, 0.1, 0}))

	hits, err := idx.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "a", hits[0].ID)
}

func TestDenseIndex_RejectsDimensionMismatch(t *testing.T) {
	idx := NewDenseIndex(4)
	err := idx.Add("a", []float32{1, 2, 3})
	require.Error(t, err)

	_, err = idx.Search([]float32{1, 2, 3}, 1)
	require.Error(t, err)
}

func TestDenseIndex_EmptySearchReturnsNil(t *testing.T) {
	idx := NewDenseIndex(2)
	hits, err := idx.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestDenseIndex_Len(t *testing.T) {
	idx := NewDenseIndex(2)
	require.Equal(t, 0, idx.Len())
	require.NoError(t, idx.Add("a", []float32{1, 0}))
	require.Equal(t, 1, idx.Len())
}

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

func scoreOf(scores []ScoredID, id string) (float32, bool) {
	for _, s := range scores {
		if s.ID == id {
			return s.Score, true
		}
	}
	return 0, false
}

func TestMinMaxNorm_Basic(t *testing.T) {
	in := []ScoredID{{ID: "a", Score: 10}, {ID: "b", Score: 20}, {ID: "c", Score: 15}}
	out := MinMaxNorm{Clamp: true, Epsilon: 1e-6}.Normalize(in)
	a, _ := scoreOf(out, "a")
	b, _ := scoreOf(out, "b")
	c, _ := scoreOf(out, "c")
	require.InDelta(t, 0.0, a, 1e-6)
	require.InDelta(t, 1.0, b, 1e-6)
	require.InDelta(t, 0.5, c, 1e-6)
}

func TestMinMaxNorm_AllEqualUsesEpsilon(t *testing.T) {
	in := []ScoredID{{ID: "a", Score: 5}, {ID: "b", Score: 5}}
	out := MinMaxNorm{Clamp: true, Epsilon: 1e-6}.Normalize(in)
	a, _ := scoreOf(out, "a")
	b, _ := scoreOf(out, "b")
	require.InDelta(t, 0.0, a, 1e-6)
	require.InDelta(t, 0.0, b, 1e-6)
}

func TestZScoreNorm(t *testing.T) {
	in := []ScoredID{{ID: "a", Score: 1}, {ID: "b", Score: 2}, {ID: "c", Score: 3}}
	out := ZScoreNorm{Epsilon: 1e-6}.Normalize(in)
	a, _ := scoreOf(out, "a")
	b, _ := scoreOf(out, "b")
	c, _ := scoreOf(out, "c")
	require.InDelta(t, -1.22474, a, 1e-3)
	require.InDelta(t, 0.0, b, 1e-6)
	require.InDelta(t, 1.22474, c, 1e-3)
}

func TestLogisticNorm(t *testing.T) {
	in := []ScoredID{{ID: "a", Score: 0}, {ID: "b", Score: 0.5}, {ID: "c", Score: 1}}
	out := LogisticNorm{Midpoint: 0.5, Steepness: 10, Clamp: true}.Normalize(in)
	a, _ := scoreOf(out, "a")
	b, _ := scoreOf(out, "b")
	c, _ := scoreOf(out, "c")
	require.InDelta(t, 0.0066928, a, 1e-3)
	require.InDelta(t, 0.5, b, 1e-6)
	require.InDelta(t, 0.993307, c, 1e-3)
}

func TestNoneNorm_Passthrough(t *testing.T) {
	in := []ScoredID{{ID: "a", Score: 3.5}}
	out := NoneNorm{}.Normalize(in)
	require.Equal(t, in, out)
}

func TestReciprocalRankFusion_AccumulatesAcrossRankings(t *testing.T) {
	dense := []ScoredID{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	sparse := []ScoredID{{ID: "y"}, {ID: "x"}}

	fused := ReciprocalRankFusion([][]ScoredID{dense, sparse}, DefaultRRFK)

	x, ok := scoreOf(fused, "x")
	require.True(t, ok)
	y, ok := scoreOf(fused, "y")
	require.True(t, ok)
	z, ok := scoreOf(fused, "z")
	require.True(t, ok)

	// y is rank 2 in dense and rank 1 in sparse; x is rank 1 in dense and
	// rank 2 in sparse. Both rankings contribute, so x and y tie (each
	// has one rank-1 and one rank-2 term), and z (only in dense, at the
	// worst rank) scores lowest.
	require.Greater(t, y, z)
	require.Greater(t, x, z)
}

func TestReciprocalRankFusion_DefaultsKWhenNonPositive(t *testing.T) {
	ranking := []ScoredID{{ID: "a"}}
	fused := ReciprocalRankFusion([][]ScoredID{ranking}, 0)
	require.Len(t, fused, 1)
	require.InDelta(t, 1.0/(DefaultRRFK+1), fused[0].Score, 1e-9)
}

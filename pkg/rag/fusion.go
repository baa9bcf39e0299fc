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

import "math"

// ScoredID pairs a node ID with a ranking score. Order is not
// significant; callers sort when they need it.
type ScoredID struct {
	ID    string
	Score float32
}

// ScoreNorm rescales a set of scores onto a comparable footing so dense
// and sparse result sets can be merged by value rather than by rank
// alone. IDs and slice order are preserved; only Score is transformed.
type ScoreNorm interface {
	Normalize(scores []ScoredID) []ScoredID
}

// NoneNorm passes scores through unchanged.
type NoneNorm struct{}

func (NoneNorm) Normalize(scores []ScoredID) []ScoredID {
	out := make([]ScoredID, len(scores))
	copy(out, scores)
	return out
}

// MinMaxNorm rescales to [0, 1]: (x - min) / max(max - min, epsilon).
type MinMaxNorm struct {
	Clamp   bool
	Epsilon float32
}

func (n MinMaxNorm) Normalize(scores []ScoredID) []ScoredID {
	if len(scores) == 0 {
		return nil
	}
	minV := float32(math.Inf(1))
	maxV := float32(math.Inf(-1))
	for _, s := range scores {
		if s.Score < minV {
			minV = s.Score
		}
		if s.Score > maxV {
			maxV = s.Score
		}
	}
	denom := maxV - minV
	if denom < n.Epsilon {
		denom = n.Epsilon
	}
	out := make([]ScoredID, len(scores))
	for i, s := range scores {
		v := (s.Score - minV) / denom
		if n.Clamp {
			v = clamp01(v)
		}
		out[i] = ScoredID{ID: s.ID, Score: v}
	}
	return out
}

// ZScoreNorm standardises to mean 0, unit variance: (x - mean) / max(stddev, epsilon).
type ZScoreNorm struct {
	Epsilon float32
}

func (n ZScoreNorm) Normalize(scores []ScoredID) []ScoredID {
	if len(scores) == 0 {
		return nil
	}
	count := float32(len(scores))
	var mean float32
	for _, s := range scores {
		mean += s.Score
	}
	mean /= count
	var variance float32
	for _, s := range scores {
		d := s.Score - mean
		variance += d * d
	}
	variance /= count
	stddev := float32(math.Sqrt(float64(variance)))
	if stddev < n.Epsilon {
		stddev = n.Epsilon
	}
	out := make([]ScoredID, len(scores))
	for i, s := range scores {
		out[i] = ScoredID{ID: s.ID, Score: (s.Score - mean) / stddev}
	}
	return out
}

// LogisticNorm squashes scores into (0, 1) via
// 1 / (1 + exp(-steepness * (x - midpoint))).
type LogisticNorm struct {
	Midpoint  float32
	Steepness float32
	Clamp     bool
}

func (n LogisticNorm) Normalize(scores []ScoredID) []ScoredID {
	if len(scores) == 0 {
		return nil
	}
	out := make([]ScoredID, len(scores))
	for i, s := range scores {
		x := s.Score
		v := float32(1.0 / (1.0 + math.Exp(-float64(n.Steepness*(x-n.Midpoint)))))
		if n.Clamp {
			v = clamp01(v)
		}
		out[i] = ScoredID{ID: s.ID, Score: v}
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DefaultScoreNorm matches the fusion package's default: clamped min-max
// with a small epsilon to avoid division by zero on a degenerate (all
// equal) score set.
func DefaultScoreNorm() ScoreNorm {
	return MinMaxNorm{Clamp: true, Epsilon: 1e-6}
}

// DefaultRRFK is the rank-offset constant from the standard reciprocal
// rank fusion formula 1/(k+rank); 60 is the commonly cited value that
// keeps early ranks from dominating the fused score.
const DefaultRRFK = 60.0

// ReciprocalRankFusion merges any number of independently ranked result
// lists into one fused ranking. Each input ranking's order is taken as
// the rank (ranking[0] is rank 1); scores within a ranking are ignored.
// An ID present in more than one ranking accumulates 1/(k+rank) from
// each.
func ReciprocalRankFusion(rankings [][]ScoredID, k float64) []ScoredID {
	if k <= 0 {
		k = DefaultRRFK
	}
	acc := make(map[string]float64)
	order := make([]string, 0)
	for _, ranking := range rankings {
		for rank, s := range ranking {
			if _, seen := acc[s.ID]; !seen {
				order = append(order, s.ID)
			}
			acc[s.ID] += 1.0 / (k + float64(rank+1))
		}
	}
	out := make([]ScoredID, len(order))
	for i, id := range order {
		out[i] = ScoredID{ID: id, Score: float32(acc[id])}
	}
	return out
}

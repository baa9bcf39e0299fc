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

// Package embed implements the batch-in/batch-out embedding contract:
// tokenize with padding to a multiple of 8 and truncation at a maximum
// length, mean-pool token embeddings weighted by the attention mask, and
// L2-normalise the result. Providers call a local or remote embedding
// server over HTTP; a deterministic mock provider exercises the same
// pooling/normalisation path for tests that must not reach the network.
package embed

import (
	"context"
	"fmt"
	"math"
)

// DefaultMaxTokens is the truncation length applied before pooling.
const DefaultMaxTokens = 256

// PadMultiple is the token-count alignment padding targets.
const PadMultiple = 8

// Embedder generates order-preserving embedding vectors for a batch of
// snippets. On success, implementations return one vector per input, in
// input order; on failure they return the error and no partial result.
type Embedder interface {
	// Embed returns one L2-normalised vector per text in batch, same
	// length and order as batch. Dims reports the embedding
	// dimensionality so callers can validate against an EmbeddingSet.
	Embed(ctx context.Context, batch []string) ([][]float32, error)

	// Dims is the dimensionality of vectors this Embedder produces.
	Dims() int

	// Model names the embedding model, used to name the Store's vector
	// relation (emb_<model>_<dims>).
	Model() string
}

// FailureKind classifies why a batch embed call failed, matching the
// contract's named failure cases.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureEmptyBatch
	FailureDimensionMismatch
	FailureModelDownload
	FailureIO
	FailureTokenizer
	FailureTensor
)

func (k FailureKind) String() string {
	switch k {
	case FailureEmptyBatch:
		return "empty_batch"
	case FailureDimensionMismatch:
		return "dimension_mismatch"
	case FailureModelDownload:
		return "model_download"
	case FailureIO:
		return "io"
	case FailureTokenizer:
		return "tokenizer"
	case FailureTensor:
		return "tensor"
	default:
		return "unknown"
	}
}

// Error reports a classified embedding failure.
type Error struct {
	Kind   FailureKind
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("embed: %s: %s", e.Kind, e.Detail) }

func newError(kind FailureKind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// padAndTruncate applies the contract's tokenization shaping: truncate
// each token sequence to maxTokens, then pad every sequence in the batch
// up to a shared length that is a multiple of PadMultiple. It returns the
// shaped token-id sequences and a parallel attention mask (1 for a real
// token, 0 for padding).
func padAndTruncate(tokenized [][]int, maxTokens int) (padded [][]int, mask [][]float32) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	longest := 0
	truncated := make([][]int, len(tokenized))
	for i, toks := range tokenized {
		if len(toks) > maxTokens {
			toks = toks[:maxTokens]
		}
		truncated[i] = toks
		if len(toks) > longest {
			longest = len(toks)
		}
	}

	padTo := longest
	if rem := padTo % PadMultiple; rem != 0 {
		padTo += PadMultiple - rem
	}

	padded = make([][]int, len(truncated))
	mask = make([][]float32, len(truncated))
	for i, toks := range truncated {
		row := make([]int, padTo)
		m := make([]float32, padTo)
		copy(row, toks)
		for j := range toks {
			m[j] = 1
		}
		padded[i] = row
		mask[i] = m
	}
	return padded, mask
}

// meanPool averages tokenEmbeddings over the sequence dimension, weighted
// by attentionMask so padding tokens contribute nothing.
func meanPool(tokenEmbeddings [][]float32, attentionMask []float32) []float32 {
	if len(tokenEmbeddings) == 0 {
		return nil
	}
	dims := len(tokenEmbeddings[0])
	sum := make([]float32, dims)
	var weight float32

	for i, tok := range tokenEmbeddings {
		w := float32(1)
		if i < len(attentionMask) {
			w = attentionMask[i]
		}
		if w == 0 {
			continue
		}
		weight += w
		for d := 0; d < dims; d++ {
			sum[d] += tok[d] * w
		}
	}

	if weight == 0 {
		return sum
	}
	for d := range sum {
		sum[d] /= weight
	}
	return sum
}

// normalize rescales v to unit L2 norm, leaving a zero vector unchanged.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

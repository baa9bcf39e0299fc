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

package transform

import (
	"fmt"
	"strings"

	"github.com/josephleblanc/ploke-ingest/internal/contract"
)

// Batcher groups individual `:put` statements into scripts that stay
// under a byte budget and, soft-target, a mutation-count budget.
type Batcher struct {
	targetMutations int
	maxScriptSize   int
}

// NewBatcher builds a Batcher. A non-positive maxScriptSize falls back
// to contract.SoftLimitBytes().
func NewBatcher(targetMutations, maxScriptSize int) *Batcher {
	if maxScriptSize <= 0 {
		maxScriptSize = contract.SoftLimitBytes()
	}
	return &Batcher{targetMutations: targetMutations, maxScriptSize: maxScriptSize}
}

// Batch joins statements into one or more scripts, each under
// maxScriptSize bytes and targeting at most targetMutations statements.
// A single statement exceeding maxScriptSize is reported as an error
// rather than silently split, since splitting mid-statement would
// produce an invalid script. Every finished batch is also checked with
// contract.ValidateBatchScript as a second, independent guard against
// the same soft limit.
func (b *Batcher) Batch(statements []string) ([]string, error) {
	if len(statements) == 0 {
		return nil, nil
	}

	var batches []string
	var current []string
	currentSize := 0
	separatorSize := len("\n\n")

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		batch := strings.Join(current, "\n\n")
		if !strings.HasSuffix(batch, "\n") {
			batch += "\n"
		}
		if res := contract.ValidateBatchScript(batch); !res.OK {
			return fmt.Errorf("assembled batch failed validation: %s", res.Message)
		}
		batches = append(batches, batch)
		current = nil
		currentSize = 0
		return nil
	}

	for _, stmt := range statements {
		if len(stmt) > b.maxScriptSize {
			preview := stmt
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			return nil, fmt.Errorf("statement exceeds max script size: %d bytes (limit %d): %s", len(stmt), b.maxScriptSize, preview)
		}

		additional := len(stmt)
		if len(current) > 0 {
			additional += separatorSize
		}
		wouldExceedSize := currentSize+additional > b.maxScriptSize
		wouldExceedTarget := b.targetMutations > 0 && len(current) >= b.targetMutations

		if len(current) > 0 && (wouldExceedSize || wouldExceedTarget) {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		current = append(current, stmt)
		currentSize += additional
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return batches, nil
}

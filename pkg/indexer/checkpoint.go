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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Checkpoint is the restartable state of one indexing run: how far it
// got, and which node ids remain so a resumed run can skip straight to
// FetchPending without re-deriving the pending set from scratch.
type Checkpoint struct {
	CrateID       string      `json:"crate_id"`
	Processed     int         `json:"processed"`
	Total         int         `json:"total"`
	PendingNodeID []uuid.UUID `json:"pending_node_ids,omitempty"`
	StartTime     string      `json:"start_time"`
	LastUpdate    string      `json:"last_update"`
}

// CheckpointManager persists a Checkpoint via atomic temp-file+rename, so
// a crash mid-write never leaves a corrupt checkpoint on disk.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager builds a manager that stores checkpoints under
// dir.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{dir: dir}
}

func (cm *CheckpointManager) path(crateID string) string {
	if cm.dir != "" {
		return filepath.Join(cm.dir, fmt.Sprintf("checkpoint-%s.json", crateID))
	}
	return fmt.Sprintf("checkpoint-%s.json", crateID)
}

// Load reads a crate's checkpoint, returning (nil, nil) if none exists.
func (cm *CheckpointManager) Load(crateID string) (*Checkpoint, error) {
	data, err := os.ReadFile(cm.path(crateID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes cp atomically: a temp file is written then renamed over
// the final path, so readers never observe a partial write.
func (cm *CheckpointManager) Save(cp *Checkpoint) error {
	path := cm.path(cp.CrateID)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Clear removes a crate's checkpoint file, if any.
func (cm *CheckpointManager) Clear(crateID string) error {
	if err := os.Remove(cm.path(crateID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

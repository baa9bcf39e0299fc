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

//go:build cgo

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DataDir: t.TempDir(), Engine: "mem"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_OpenDefaultsEngine(t *testing.T) {
	s, err := Open(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
}

func TestStore_QueryAfterClose(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), "?[x] := x = 1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}

func TestStore_QueryContextCanceled(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, "?[x] := x = 1", nil)
	require.Error(t, err)
}

func TestStore_EnsureSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSchema())
	require.NoError(t, s.EnsureSchema())

	res, err := s.Query(context.Background(), "?[id, name] := *function{id, name, kind: _, span: _, visibility: _, attributes: _, docstring: _, cfgs: _, file_path: _, tracking_hash: _, signature: _, return_type: _} :limit 1", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestStore_ExecutePublishesToSubscribers(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSchema())

	ch := make(chan MutationEvent, 1)
	unregister := s.Subscribe("import", ch)
	defer unregister()

	script := `:put import { id: "11111111-1111-1111-1111-111111111111", kind: "import", name: "x", span: [0,1], visibility: ["public", null], attributes: [], docstring: "", cfgs: [], file_path: "lib.rs", tracking_hash: null, import_kind: "use_statement", source_path: ["std"], visible_name: "x", original_name: null, is_glob: false, is_self_import: false }`
	_, err := s.Execute(context.Background(), "import", script, nil)
	require.NoError(t, err)

	select {
	case evt := <-ch:
		require.Equal(t, "import", evt.Relation)
	default:
		t.Fatal("expected a published MutationEvent")
	}
}

func TestStore_CreateVectorRelationIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	name, err := s.CreateVectorRelation("nomic-embed-text", 768)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(name, "emb_"))

	name2, err := s.CreateVectorRelation("nomic-embed-text", 768)
	require.NoError(t, err)
	require.Equal(t, name, name2)
}

func TestStore_BackupRestoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSchema())

	backupPath := t.TempDir() + "/backup.db"
	require.NoError(t, s.Backup(backupPath))
	require.NoError(t, s.Restore(backupPath))
}

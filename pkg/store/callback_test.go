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

package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallbackManager_DispatchesToMatchingRelation(t *testing.T) {
	m := newCallbackManager()
	ch := make(chan MutationEvent, 1)
	m.register("function", ch)

	m.publish(MutationEvent{Relation: "function", Headers: []string{"id"}})
	select {
	case evt := <-ch:
		require.Equal(t, "function", evt.Relation)
	default:
		t.Fatal("expected event on matching subscriber")
	}
}

func TestCallbackManager_WildcardReceivesEverything(t *testing.T) {
	m := newCallbackManager()
	ch := make(chan MutationEvent, 2)
	m.register(allRelations, ch)

	m.publish(MutationEvent{Relation: "function"})
	m.publish(MutationEvent{Relation: "struct"})

	require.Len(t, ch, 2)
}

func TestCallbackManager_UnregisterStopsDelivery(t *testing.T) {
	m := newCallbackManager()
	ch := make(chan MutationEvent, 1)
	unregister := m.register("module", ch)
	unregister()

	m.publish(MutationEvent{Relation: "module"})
	require.Empty(t, ch)
}

func TestCallbackManager_UnregisterIsIdempotent(t *testing.T) {
	m := newCallbackManager()
	ch := make(chan MutationEvent, 1)
	unregister := m.register("module", ch)
	unregister()
	unregister()
}

func TestCallbackManager_FullChannelDoesNotBlock(t *testing.T) {
	m := newCallbackManager()
	ch := make(chan MutationEvent)
	m.register("module", ch)

	m.publish(MutationEvent{Relation: "module"})
}

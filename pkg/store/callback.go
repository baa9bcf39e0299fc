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

import "sync"

// MutationEvent is published to subscribers after a successful Execute.
type MutationEvent struct {
	Relation string
	Headers  []string
	Rows     [][]any
}

// allRelations is the subscription key for callbacks registered with an
// empty relation name.
const allRelations = ""

type subscriber struct {
	id uint64
	ch chan<- MutationEvent
}

// CallbackManager dispatches MutationEvents to per-relation subscriber
// channels and honours unregistration on drop via the closure returned
// from register.
type CallbackManager struct {
	mu         sync.Mutex
	nextID     uint64
	byRelation map[string][]subscriber
}

func newCallbackManager() *CallbackManager {
	return &CallbackManager{byRelation: make(map[string][]subscriber)}
}

func (m *CallbackManager) register(relation string, ch chan<- MutationEvent) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.byRelation[relation] = append(m.byRelation[relation], subscriber{id: id, ch: ch})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.byRelation[relation]
		for i, s := range subs {
			if s.id == id {
				m.byRelation[relation] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// publish fans event out to subscribers of event.Relation and to
// subscribers of allRelations. Sends are non-blocking: a subscriber with
// a full channel misses the event rather than stalling the writer.
func (m *CallbackManager) publish(event MutationEvent) {
	m.mu.Lock()
	targets := make([]chan<- MutationEvent, 0, 4)
	for _, s := range m.byRelation[event.Relation] {
		targets = append(targets, s.ch)
	}
	if event.Relation != allRelations {
		for _, s := range m.byRelation[allRelations] {
			targets = append(targets, s.ch)
		}
	}
	m.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
		}
	}
}

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

package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
)

func TestCrateNamespace_Deterministic(t *testing.T) {
	ns1 := CrateNamespace("ploke-core", "0.1.0")
	ns2 := CrateNamespace("ploke-core", "0.1.0")
	assert.Equal(t, ns1, ns2)
}

func TestCrateNamespace_DifferentVersionsDiffer(t *testing.T) {
	ns1 := CrateNamespace("ploke-core", "0.1.0")
	ns2 := CrateNamespace("ploke-core", "0.2.0")
	assert.NotEqual(t, ns1, ns2)
}

func TestCrateNamespace_DifferentNamesDiffer(t *testing.T) {
	ns1 := CrateNamespace("ploke-core", "0.1.0")
	ns2 := CrateNamespace("ploke-io", "0.1.0")
	assert.NotEqual(t, ns1, ns2)
}

func TestSyntheticNode_DeterministicAcrossRuns(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	modulePath := []string{"ingest", "parser"}

	id1 := SyntheticNode(ns, "src/parser.rs", modulePath, "visit_item", graph.KindFunction, nil, nil)
	id2 := SyntheticNode(ns, "src/parser.rs", modulePath, "visit_item", graph.KindFunction, nil, nil)

	require.Equal(t, id1, id2)
	assert.Equal(t, uuid.Version(5), id1.Version())
}

func TestSyntheticNode_DifferentKindsDiffer(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	modulePath := []string{"ingest"}

	fnID := SyntheticNode(ns, "src/lib.rs", modulePath, "Item", graph.KindFunction, nil, nil)
	structID := SyntheticNode(ns, "src/lib.rs", modulePath, "Item", graph.KindStruct, nil, nil)

	assert.NotEqual(t, fnID, structID)
}

func TestSyntheticNode_DifferentModulePathsDiffer(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	id1 := SyntheticNode(ns, "src/lib.rs", []string{"a", "b"}, "f", graph.KindFunction, nil, nil)
	id2 := SyntheticNode(ns, "src/lib.rs", []string{"ab"}, "f", graph.KindFunction, nil, nil)

	// Length-prefixing must prevent segment-boundary collisions: ["a","b"]
	// concatenated naively equals "ab" concatenated with the next field.
	assert.NotEqual(t, id1, id2)
}

func TestSyntheticNode_DifferentParentScopeDiffers(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	scopeA := uuid.New()
	scopeB := uuid.New()

	id1 := SyntheticNode(ns, "src/lib.rs", nil, "method", graph.KindMethod, &scopeA, nil)
	id2 := SyntheticNode(ns, "src/lib.rs", nil, "method", graph.KindMethod, &scopeB, nil)
	id3 := SyntheticNode(ns, "src/lib.rs", nil, "method", graph.KindMethod, nil, nil)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestSyntheticNode_DifferentCfgBytesDiffer(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	id1 := SyntheticNode(ns, "src/lib.rs", nil, "f", graph.KindFunction, nil, []byte("unix"))
	id2 := SyntheticNode(ns, "src/lib.rs", nil, "f", graph.KindFunction, nil, []byte("windows"))

	assert.NotEqual(t, id1, id2)
}

func TestSyntheticNode_DifferentNamespaceDiffers(t *testing.T) {
	ns1 := CrateNamespace("ploke-core", "0.1.0")
	ns2 := CrateNamespace("ploke-io", "0.1.0")

	id1 := SyntheticNode(ns1, "src/lib.rs", nil, "f", graph.KindFunction, nil, nil)
	id2 := SyntheticNode(ns2, "src/lib.rs", nil, "f", graph.KindFunction, nil, nil)

	assert.NotEqual(t, id1, id2)
}

func TestSyntheticType_Deterministic(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	id1 := SyntheticType(ns, "src/lib.rs", "Vec<u8>", nil)
	id2 := SyntheticType(ns, "src/lib.rs", "Vec<u8>", nil)

	assert.Equal(t, id1, id2)
}

func TestSyntheticType_ScopeSensitiveForSelf(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	scopeA := uuid.New()
	scopeB := uuid.New()

	id1 := SyntheticType(ns, "src/lib.rs", "Self", &scopeA)
	id2 := SyntheticType(ns, "src/lib.rs", "Self", &scopeB)

	assert.NotEqual(t, id1, id2, "Self must be disambiguated by enclosing scope")
}

func TestSyntheticType_ScopeSensitiveForShortGeneric(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	scopeA := uuid.New()
	scopeB := uuid.New()

	id1 := SyntheticType(ns, "src/lib.rs", "T", &scopeA)
	id2 := SyntheticType(ns, "src/lib.rs", "T", &scopeB)

	assert.NotEqual(t, id1, id2, "bare generic params are ambiguous without scope")
}

func TestSyntheticType_ScopeIgnoredForOrdinaryTypes(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")
	scopeA := uuid.New()
	scopeB := uuid.New()

	id1 := SyntheticType(ns, "src/lib.rs", "HashMap", &scopeA)
	id2 := SyntheticType(ns, "src/lib.rs", "HashMap", &scopeB)

	assert.Equal(t, id1, id2, "ordinary type names are not scope-sensitive")
}

func TestSyntheticType_DifferentStringsDiffer(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	id1 := SyntheticType(ns, "src/lib.rs", "String", nil)
	id2 := SyntheticType(ns, "src/lib.rs", "usize", nil)

	assert.NotEqual(t, id1, id2)
}

func TestTrackingHash_Deterministic(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	h1 := TrackingHash(ns, "src/lib.rs", "fn foo ( ) { } ")
	h2 := TrackingHash(ns, "src/lib.rs", "fn foo ( ) { } ")

	assert.Equal(t, h1, h2)
}

func TestTrackingHash_DifferentTokensDiffer(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	h1 := TrackingHash(ns, "src/lib.rs", "fn foo ( ) { } ")
	h2 := TrackingHash(ns, "src/lib.rs", "fn foo ( x : i32 ) { } ")

	assert.NotEqual(t, h1, h2)
}

func TestTrackingHash_DistinctFromSyntheticNode(t *testing.T) {
	ns := CrateNamespace("ploke-core", "0.1.0")

	th := TrackingHash(ns, "src/lib.rs", "foo")
	sn := SyntheticNode(ns, "src/lib.rs", nil, "foo", graph.KindFunction, nil, nil)

	assert.NotEqual(t, th, sn, "discriminant tags must separate identifier families")
}

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

// Package idgen derives every node and type identifier used by the
// ingestion pipeline deterministically from a crate's coordinates and a
// node's position in its syntax tree. Identifiers are UUIDv5 values
// (RFC 4122, SHA-1 namespace hashing) chained from a single fixed root
// namespace, so the same source produces the same IDs across runs and
// across machines without any shared mutable state.
package idgen

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/josephleblanc/ploke-ingest/pkg/graph"
)

// rootNamespace seeds every CrateNamespace. It is arbitrary but fixed:
// changing it would silently invalidate every previously stored UUID.
var rootNamespace = uuid.MustParse("7f3c9b1a-7e4d-4b8a-9c1d-1a2b3c4d5e6f")

// CrateNamespace derives the namespace UUID for one (name, version) crate
// coordinate. Every synthetic node and type produced while parsing that
// crate is chained from this value, so two crates never collide even if
// they contain byte-identical files.
func CrateNamespace(name, version string) uuid.UUID {
	return uuid.NewSHA1(rootNamespace, []byte(name+"\x00"+version))
}

// discriminant tags distinguish hash inputs belonging to different
// identifier families so that, for instance, a synthetic node and a
// synthetic type built from otherwise identical bytes never collide.
const (
	discSyntheticNode byte = 1
	discSyntheticType byte = 2
	discTrackingHash  byte = 3
)

// SyntheticNode derives the id for one node: a function, struct, module,
// or any other NodeKind. The hash input is the node's full coordinate —
// file path, module path, item name, discriminant-tagged kind, optional
// parent scope, and the byte-serialised cfg predicates active at the
// node's position — so two nodes can only share an id if every one of
// those coordinates matches exactly.
//
// parentScope is nil for top-level items with no enclosing scope beyond
// the crate root (notably the crate root module itself).
func SyntheticNode(namespace uuid.UUID, file string, modulePath []string, name string, kind graph.NodeKind, parentScope *uuid.UUID, cfgBytes []byte) uuid.UUID {
	buf := make([]byte, 0, 128+len(cfgBytes))
	buf = append(buf, discSyntheticNode)
	buf = appendLenPrefixed(buf, []byte(file))
	for _, seg := range modulePath {
		buf = appendLenPrefixed(buf, []byte(seg))
	}
	buf = append(buf, 0xff) // module-path terminator, distinct from any segment byte
	buf = appendLenPrefixed(buf, []byte(name))
	buf = append(buf, byte(kind))
	if parentScope != nil {
		buf = append(buf, 1)
		buf = append(buf, parentScope[:]...)
	} else {
		buf = append(buf, 0)
	}
	buf = appendLenPrefixed(buf, cfgBytes)
	return uuid.NewSHA1(namespace, buf)
}

// scopeSensitiveThreshold is the token-length cutoff below which a type
// string is considered ambiguous without its enclosing scope. "Self" and
// any token of length <= 2 (bare generic parameters such as "T", "Ok")
// mean the same literal text can refer to unrelated types depending on
// where it appears, so the scope id is folded into the hash whenever the
// type string is "Self" or no longer than this threshold.
const scopeSensitiveThreshold = 2

// SyntheticType derives the id for one unique type-token string observed
// within a file. scopeID is mixed into the hash whenever typeString is
// "Self" or short enough (<= scopeSensitiveThreshold characters) to be a
// bare generic parameter, since those tokens are only meaningful relative
// to their enclosing item; scopeID may be nil otherwise, in which case it
// is ignored even if provided.
func SyntheticType(namespace uuid.UUID, file, typeString string, scopeID *uuid.UUID) uuid.UUID {
	needsScope := typeString == "Self" || len(typeString) <= scopeSensitiveThreshold

	buf := make([]byte, 0, 64+len(typeString))
	buf = append(buf, discSyntheticType)
	buf = appendLenPrefixed(buf, []byte(file))
	buf = appendLenPrefixed(buf, []byte(typeString))
	if needsScope && scopeID != nil {
		buf = append(buf, 1)
		buf = append(buf, scopeID[:]...)
	} else {
		buf = append(buf, 0)
	}
	return uuid.NewSHA1(namespace, buf)
}

// TrackingHash derives a content-sensitive id from a node's raw token
// stream, used to detect whether a previously-ingested item's body
// changed between runs without needing to recompute its structural id.
// Two calls with the same (namespace, file, tokens) always agree; any
// change to the token stream changes the result.
func TrackingHash(namespace uuid.UUID, file, tokens string) uuid.UUID {
	buf := make([]byte, 0, 32+len(tokens))
	buf = append(buf, discTrackingHash)
	buf = appendLenPrefixed(buf, []byte(file))
	buf = appendLenPrefixed(buf, []byte(tokens))
	return uuid.NewSHA1(namespace, buf)
}

// appendLenPrefixed appends a 4-byte big-endian length prefix followed by
// b, preventing adjacent variable-length fields from being confused with
// one another (e.g. name="ab", next="c" colliding with name="a", next="bc").
func appendLenPrefixed(dst, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

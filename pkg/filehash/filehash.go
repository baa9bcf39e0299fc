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

// Package filehash computes BLAKE3 content hashes for discovered source
// files, bounded so that a single oversized file cannot force the whole
// pipeline to buffer it in memory. Two policies are available for files
// over the in-memory threshold: skip them entirely, or stream them in
// fixed-size chunks so memory use stays flat regardless of file size.
package filehash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// Size is a 32-byte BLAKE3 digest.
type Size [32]byte

func (s Size) String() string {
	return fmt.Sprintf("%x", [32]byte(s))
}

// ParseSize decodes a hex-encoded digest as produced by Size.String. An
// empty string returns the zero Size and no error, matching how a
// not-yet-hashed column round-trips through storage.
func ParseSize(s string) (Size, error) {
	var out Size
	if s == "" {
		return out, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("filehash: decode %q: %w", s, err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("filehash: %q decodes to %d bytes, want %d", s, len(b), len(out))
	}
	copy(out[:], b)
	return out, nil
}

// streamChunkBytes is the read buffer size used in Stream mode; chosen to
// bound peak memory use independent of file size while staying large
// enough to avoid excessive syscall overhead on large files.
const streamChunkBytes = 64 * 1024

// LargePolicy controls what happens to a regular file whose size exceeds
// maxInMemoryBytes.
type LargePolicy uint8

const (
	// Skip reports SkippedTooLarge and reads nothing.
	Skip LargePolicy = iota
	// Stream reads and hashes the file in bounded chunks.
	Stream
)

// OutcomeKind discriminates the three results HashFile can produce.
type OutcomeKind uint8

const (
	Hashed OutcomeKind = iota
	SkippedTooLarge
	NotARegularFile
)

// Outcome is the sum-typed result of hashing one path. Only the fields
// relevant to Kind are populated: Hash and SizeBytes for Hashed,
// SizeBytes and MaxInMemoryBytes for SkippedTooLarge, neither otherwise.
type Outcome struct {
	Kind             OutcomeKind
	Hash             Size
	SizeBytes        int64
	MaxInMemoryBytes int64
}

// HashBytes hashes an in-memory buffer directly, with no size bound.
func HashBytes(data []byte) Size {
	return Size(blake3.Sum256(data))
}

// HashFile hashes the file at path, honoring maxInMemoryBytes and
// largePolicy for files larger than that bound. Directories, sockets,
// symlinks-to-non-regular-targets, and other non-regular files produce
// NotARegularFile without reading any content.
func HashFile(path string, maxInMemoryBytes int64, largePolicy LargePolicy) (Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Outcome{Kind: NotARegularFile}, nil
	}

	size := info.Size()
	if size > maxInMemoryBytes {
		switch largePolicy {
		case Skip:
			return Outcome{
				Kind:             SkippedTooLarge,
				SizeBytes:        size,
				MaxInMemoryBytes: maxInMemoryBytes,
			}, nil
		case Stream:
			return hashFileStreaming(path, size)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Outcome{Kind: Hashed, Hash: HashBytes(data), SizeBytes: size}, nil
}

func hashFileStreaming(path string, size int64) (Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New(32, nil)
	buf := make([]byte, streamChunkBytes)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return Outcome{}, fmt.Errorf("hash %s: %w", path, werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var digest Size
	copy(digest[:], h.Sum(nil))
	return Outcome{Kind: Hashed, Hash: digest, SizeBytes: size}, nil
}

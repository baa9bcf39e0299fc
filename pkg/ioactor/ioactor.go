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

// Package ioactor centralises every blocking filesystem read behind a
// single long-lived actor, so the number of concurrently open file
// descriptors never exceeds a bound computed from the process's own
// soft RLIMIT_NOFILE. Callers submit batches of snippet requests and
// receive results in the same order they were submitted; the actor's
// internal worker pool fans each batch out across a semaphore-guarded
// permit pool rather than opening every file at once. UpdateRoots
// installs a root/symlink policy that every subsequent read is checked
// against before its file is opened.
package ioactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/josephleblanc/ploke-ingest/pkg/filehash"
)

const (
	envFDLimitOverride = "PLOKE_IO_FD_LIMIT"
	defaultFDLimit     = 50
	minFDLimit         = 4
	maxFDLimit         = 1024
)

// ErrPathNotAllowed is returned when a request's path falls outside the
// actor's configured roots, or violates the active symlink policy. Set
// roots via UpdateRoots; an actor with no roots configured performs no
// path-policy check at all.
var ErrPathNotAllowed = errors.New("ioactor: path not allowed")

// ErrFileChanged is returned when a SnippetRequest names an ExpectedHash
// that no longer matches the file's current BLAKE3 content hash.
var ErrFileChanged = errors.New("ioactor: file changed since expected hash was recorded")

// SymlinkPolicy controls how the actor's path-policy check treats a
// path that resolves through a symlink.
type SymlinkPolicy uint8

const (
	// SymlinkPolicyFollow resolves symlinks and root-checks the resolved
	// target, the default for a freshly built Actor.
	SymlinkPolicyFollow SymlinkPolicy = iota
	// SymlinkPolicyDeny rejects any path that is, or passes through, a
	// symlink, regardless of where it resolves to.
	SymlinkPolicyDeny
)

// SnippetRequest names one byte range to read back out of a file.
// ExpectedHash, when non-zero, must match the file's current BLAKE3
// content hash or the request fails with ErrFileChanged rather than
// returning a snippet that may no longer correspond to it.
type SnippetRequest struct {
	Path         string
	StartByte    uint32
	EndByte      uint32
	ExpectedHash filehash.Size
}

// SnippetResult is the outcome of one SnippetRequest, positionally
// aligned with the request slice passed to ReadSnippets.
type SnippetResult struct {
	Bytes []byte
	Err   error
}

// Actor owns the permit pool and serialises filesystem access through it.
// It holds no long-lived file handles between calls: every request opens,
// reads, and closes within the scope of a single acquired permit.
type Actor struct {
	sem *semaphore.Weighted

	rootsMu       sync.RWMutex
	roots         []string
	symlinkPolicy SymlinkPolicy
}

// Config controls permit-pool sizing. FDLimitOverride, when non-zero,
// takes precedence over everything else (explicit caller intent always
// wins). When it is zero, New consults PLOKE_IO_FD_LIMIT and then the
// process's RLIMIT_NOFILE soft limit, which it queries itself.
type Config struct {
	FDLimitOverride int
}

// New builds an Actor with a permit pool sized by computeFDLimit.
func New(cfg Config) *Actor {
	limit := computeFDLimit(querySoftNoFile(), os.Getenv(envFDLimitOverride), cfg.FDLimitOverride)
	return &Actor{sem: semaphore.NewWeighted(int64(limit))}
}

// computeFDLimit applies the precedence rule: an explicit builder
// override always wins, then the PLOKE_IO_FD_LIMIT environment variable,
// then a heuristic derived from the process's soft RLIMIT_NOFILE
// (min(100, soft/3)), then a fixed default — every path clamped to
// [minFDLimit, maxFDLimit] so a misconfigured environment can neither
// starve the pool to zero permits nor let it run away unbounded.
func computeFDLimit(softNoFile uint64, envOverride string, builderOverride int) int {
	if builderOverride > 0 {
		return clampFDLimit(builderOverride)
	}
	if envOverride != "" {
		if v, err := strconv.Atoi(envOverride); err == nil && v > 0 {
			return clampFDLimit(v)
		}
	}
	if softNoFile > 0 {
		heuristic := int(softNoFile / 3)
		if heuristic > 100 {
			heuristic = 100
		}
		if heuristic > 0 {
			return clampFDLimit(heuristic)
		}
	}
	return clampFDLimit(defaultFDLimit)
}

func clampFDLimit(v int) int {
	if v < minFDLimit {
		return minFDLimit
	}
	if v > maxFDLimit {
		return maxFDLimit
	}
	return v
}

// UpdateRoots replaces the actor's allowed-root set and symlink policy.
// Reads submitted after this call are checked against the new roots;
// reads already in flight are unaffected. Passing an empty roots slice
// removes the restriction entirely (the actor's zero-value behavior).
func (a *Actor) UpdateRoots(roots []string, policy SymlinkPolicy) error {
	cleaned := make([]string, len(roots))
	for i, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("resolve root %s: %w", r, err)
		}
		cleaned[i] = filepath.Clean(abs)
	}
	a.rootsMu.Lock()
	a.roots = cleaned
	a.symlinkPolicy = policy
	a.rootsMu.Unlock()
	return nil
}

// checkPath enforces the active root/symlink policy. A nil-or-empty
// root set disables the check, matching the actor's state before the
// first UpdateRoots call.
func (a *Actor) checkPath(path string) error {
	a.rootsMu.RLock()
	roots := a.roots
	policy := a.symlinkPolicy
	a.rootsMu.RUnlock()
	if len(roots) == 0 {
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrPathNotAllowed, path, err)
	}
	abs = filepath.Clean(abs)

	resolved := abs
	if real, evalErr := filepath.EvalSymlinks(abs); evalErr == nil {
		resolved = real
	}
	if policy == SymlinkPolicyDeny && resolved != abs {
		return fmt.Errorf("%w: %s traverses a symlink", ErrPathNotAllowed, path)
	}

	for _, root := range roots {
		if withinRoot(resolved, root) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside configured roots", ErrPathNotAllowed, path)
}

// withinRoot reports whether path is root itself or a descendant of it,
// rejecting any relative path whose first segment is "..".
func withinRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	if rel == "." {
		return true
	}
	first, _, _ := strings.Cut(rel, string(filepath.Separator))
	return first != ".."
}

// ReadSnippets resolves every request, running up to the actor's permit
// count concurrently, and returns results in the same order as reqs. A
// request still waiting for a permit when ctx is cancelled reports
// ctx.Err() in its SnippetResult; reads already started are not
// interrupted and complete normally. A request whose path fails the active
// root/symlink policy reports ErrPathNotAllowed; one whose ExpectedHash
// no longer matches the file's content reports ErrFileChanged, in both
// cases without a snippet.
func (a *Actor) ReadSnippets(ctx context.Context, reqs []SnippetRequest) []SnippetResult {
	results := make([]SnippetResult, len(reqs))
	done := make(chan int, len(reqs))

	for i, req := range reqs {
		i, req := i, req
		if err := a.sem.Acquire(ctx, 1); err != nil {
			results[i] = SnippetResult{Err: err}
			done <- i
			continue
		}
		go func() {
			defer a.sem.Release(1)
			results[i] = a.readSnippet(req)
			done <- i
		}()
	}

	for range reqs {
		<-done
	}
	return results
}

func (a *Actor) readSnippet(req SnippetRequest) SnippetResult {
	if req.EndByte < req.StartByte {
		return SnippetResult{Err: fmt.Errorf("invalid range [%d,%d) for %s", req.StartByte, req.EndByte, req.Path)}
	}
	if err := a.checkPath(req.Path); err != nil {
		return SnippetResult{Err: err}
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return SnippetResult{Err: fmt.Errorf("open %s: %w", req.Path, err)}
	}
	defer f.Close()

	var noHash filehash.Size
	if req.ExpectedHash != noHash {
		data, err := io.ReadAll(f)
		if err != nil {
			return SnippetResult{Err: fmt.Errorf("read %s: %w", req.Path, err)}
		}
		if filehash.HashBytes(data) != req.ExpectedHash {
			return SnippetResult{Err: fmt.Errorf("%w: %s", ErrFileChanged, req.Path)}
		}
		if int(req.EndByte) > len(data) {
			return SnippetResult{Err: fmt.Errorf("range [%d,%d) out of bounds for %s (%d bytes)", req.StartByte, req.EndByte, req.Path, len(data))}
		}
		buf := make([]byte, req.EndByte-req.StartByte)
		copy(buf, data[req.StartByte:req.EndByte])
		return SnippetResult{Bytes: buf}
	}

	length := int(req.EndByte - req.StartByte)
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(req.StartByte)); err != nil {
		return SnippetResult{Err: fmt.Errorf("read %s[%d:%d]: %w", req.Path, req.StartByte, req.EndByte, err)}
	}
	return SnippetResult{Bytes: buf}
}

// ScanForChanges re-hashes the given paths and reports which ones no
// longer match their previously recorded hash, respecting the same
// permit pool used for snippet reads so a rescan cannot starve ongoing
// ingestion of file descriptors.
func (a *Actor) ScanForChanges(ctx context.Context, paths []string, knownHashes map[string][32]byte, hashFn func(path string) ([32]byte, error)) (changed []string, err error) {
	type outcome struct {
		path    string
		changed bool
		err     error
	}
	results := make(chan outcome, len(paths))

	for _, p := range paths {
		p := p
		if aerr := a.sem.Acquire(ctx, 1); aerr != nil {
			return nil, aerr
		}
		go func() {
			defer a.sem.Release(1)
			h, herr := hashFn(p)
			if herr != nil {
				results <- outcome{path: p, err: herr}
				return
			}
			prev, known := knownHashes[p]
			results <- outcome{path: p, changed: !known || prev != h}
		}()
	}

	for range paths {
		o := <-results
		if o.err != nil {
			return nil, o.err
		}
		if o.changed {
			changed = append(changed, o.path)
		}
	}
	return changed, nil
}

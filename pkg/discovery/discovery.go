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

// Package discovery walks a Cargo workspace and yields one CrateSources
// value per member crate: its manifest coordinates and the set of .rs
// files under its src/ tree, ready to hand to the Parser. It never reads
// crate-level semantics beyond what Cargo.toml's [package] table states.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	packageNameRe    = regexp.MustCompile(`(?m)^\s*name\s*=\s*"([^"]+)"\s*$`)
	packageVersionRe = regexp.MustCompile(`(?m)^\s*version\s*=\s*"([^"]+)"\s*$`)
	workspaceMemberRe = regexp.MustCompile(`(?m)^\s*members\s*=\s*\[([^\]]*)\]`)
	quotedEntryRe     = regexp.MustCompile(`"([^"]+)"`)
)

// DefaultExcludeGlobs are directory names skipped during every walk,
// mirroring the build and VCS artefacts no ingestion run needs to see.
var DefaultExcludeGlobs = []string{
	"target/**",
	".git/**",
	"**/target/**",
}

// CrateSources is one discovered crate: its manifest coordinates and the
// Rust source files found under its src/ directory.
type CrateSources struct {
	Name    string
	Version string
	Root    string   // absolute path to the crate's directory (containing Cargo.toml)
	Files   []string // absolute paths to .rs files under Root/src
}

// WorkspaceResult is the complete output of walking a workspace root.
type WorkspaceResult struct {
	Crates      []CrateSources
	SkipReasons map[string]int
}

// DiscoverWorkspace walks root looking for a Cargo.toml. If it declares a
// [workspace] members list, each member is resolved relative to root and
// walked as its own crate; otherwise root itself is treated as a single
// crate. excludeGlobs are matched against paths relative to each crate's
// root in addition to DefaultExcludeGlobs.
func DiscoverWorkspace(root string, excludeGlobs []string, maxFileSize int64) (*WorkspaceResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	manifestPath := filepath.Join(absRoot, "Cargo.toml")
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	members := parseWorkspaceMembers(string(manifest))
	result := &WorkspaceResult{SkipReasons: make(map[string]int)}

	if len(members) == 0 {
		crate, err := discoverCrate(absRoot, excludeGlobs, maxFileSize, result.SkipReasons)
		if err != nil {
			return nil, err
		}
		result.Crates = append(result.Crates, crate)
		return result, nil
	}

	for _, memberGlob := range members {
		matches, err := expandMemberGlob(absRoot, memberGlob)
		if err != nil {
			return nil, fmt.Errorf("expand workspace member %q: %w", memberGlob, err)
		}
		for _, memberDir := range matches {
			if _, err := os.Stat(filepath.Join(memberDir, "Cargo.toml")); err != nil {
				continue
			}
			crate, err := discoverCrate(memberDir, excludeGlobs, maxFileSize, result.SkipReasons)
			if err != nil {
				return nil, err
			}
			result.Crates = append(result.Crates, crate)
		}
	}
	return result, nil
}

func discoverCrate(crateRoot string, excludeGlobs []string, maxFileSize int64, skipReasons map[string]int) (CrateSources, error) {
	manifestPath := filepath.Join(crateRoot, "Cargo.toml")
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		return CrateSources{}, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	name := firstSubmatch(packageNameRe, string(manifest))
	version := firstSubmatch(packageVersionRe, string(manifest))

	srcRoot := filepath.Join(crateRoot, "src")
	files, err := walkRustFiles(srcRoot, crateRoot, excludeGlobs, maxFileSize, skipReasons)
	if err != nil {
		return CrateSources{}, fmt.Errorf("walk %s: %w", srcRoot, err)
	}

	return CrateSources{Name: name, Version: version, Root: crateRoot, Files: files}, nil
}

func walkRustFiles(srcRoot, crateRoot string, excludeGlobs []string, maxFileSize int64, skipReasons map[string]int) ([]string, error) {
	var files []string
	allExcludes := append(append([]string{}, DefaultExcludeGlobs...), excludeGlobs...)

	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == srcRoot {
				return nil
			}
			skipReasons["walk_error"]++
			return nil
		}

		relToCrate, relErr := filepath.Rel(crateRoot, path)
		if relErr != nil {
			return nil
		}
		normalized := filepath.ToSlash(relToCrate)

		if d.IsDir() {
			if matchesAny(normalized, allExcludes) {
				skipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".rs" {
			return nil
		}
		if matchesAny(normalized, allExcludes) {
			skipReasons["excluded"]++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxFileSize > 0 && info.Size() > maxFileSize {
			skipReasons["too_large"]++
			return nil
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

func parseWorkspaceMembers(manifest string) []string {
	m := workspaceMemberRe.FindStringSubmatch(manifest)
	if m == nil {
		return nil
	}
	entries := quotedEntryRe.FindAllStringSubmatch(m[1], -1)
	members := make([]string, 0, len(entries))
	for _, e := range entries {
		members = append(members, e[1])
	}
	return members
}

func expandMemberGlob(workspaceRoot, memberGlob string) ([]string, error) {
	if !strings.Contains(memberGlob, "*") {
		return []string{filepath.Join(workspaceRoot, memberGlob)}, nil
	}
	matches, err := filepath.Glob(filepath.Join(workspaceRoot, memberGlob))
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func matchesAny(path string, globs []string) bool {
	for _, pattern := range globs {
		if matchesGlob(path, pattern) {
			return true
		}
	}
	return false
}

// matchesGlob supports a trailing "/**" (directory prefix at any depth),
// a leading "**/" (path suffix), and exact matches; any other "*" in a
// pattern is compared literally. It is a much smaller subset than a full
// glob matcher since workspace exclude lists are simple directory-prefix
// patterns in practice.
func matchesGlob(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		prefix = strings.TrimPrefix(prefix, "**/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
		parts := strings.Split(path, "/")
		for i := range parts {
			subpath := strings.Join(parts[i:], "/")
			if subpath == prefix || strings.HasPrefix(subpath, prefix+"/") {
				return true
			}
		}
		return false
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		return path == suffix || strings.HasSuffix(path, "/"+suffix)
	}

	return path == pattern
}

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

package moduletree

import "fmt"

// ErrorKind enumerates the resolution-failure taxonomy. Most kinds are
// recovered locally (the offending item/edge is dropped and resolution
// continues); callers inspect the returned []error slice for a full
// report rather than treating any single kind as fatal.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrDuplicatePath
	ErrDuplicateModuleId
	ErrDuplicateContains
	ErrUnlinkedModules
	ErrFilePathMissingParent
	ErrRootModuleNotFileBased
	ErrRootModuleNotFound
	ErrConflictingReExportPath
	ErrUnresolvedReExportTarget
	ErrItemNotPubliclyAccessible
	ErrModuleDefinitionNotFound
	ErrExternalItemNotResolved
	ErrRecursionLimitExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case ErrDuplicatePath:
		return "DuplicatePath"
	case ErrDuplicateModuleId:
		return "DuplicateModuleId"
	case ErrDuplicateContains:
		return "DuplicateContains"
	case ErrUnlinkedModules:
		return "UnlinkedModules"
	case ErrFilePathMissingParent:
		return "FilePathMissingParent"
	case ErrRootModuleNotFileBased:
		return "RootModuleNotFileBased"
	case ErrRootModuleNotFound:
		return "RootModuleNotFound"
	case ErrConflictingReExportPath:
		return "ConflictingReExportPath"
	case ErrUnresolvedReExportTarget:
		return "UnresolvedReExportTarget"
	case ErrItemNotPubliclyAccessible:
		return "ItemNotPubliclyAccessible"
	case ErrModuleDefinitionNotFound:
		return "ModuleDefinitionNotFound"
	case ErrExternalItemNotResolved:
		return "ExternalItemNotResolved"
	case ErrRecursionLimitExceeded:
		return "RecursionLimitExceeded"
	default:
		return "Unknown"
	}
}

// ResolutionError names one taxonomy failure and the detail that
// triggered it (a path, a node id string, a file name).
type ResolutionError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("moduletree: %s: %s", e.Kind, e.Detail)
}

func newErr(kind ErrorKind, format string, args ...any) error {
	return &ResolutionError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ChainTooLongError reports a pub-use re-export chain exceeding the
// policy-fixed depth bound (maxReExportDepth). Dispatch via errors.As,
// never by matching Error()'s text.
type ChainTooLongError struct {
	Depth int
}

func (e *ChainTooLongError) Error() string {
	return fmt.Sprintf("moduletree: ChainTooLong: chain exceeded depth %d", e.Depth)
}

// types.go: Common data types for the extension loading system
//
// This file contains the shared data models used throughout the extension
// system: directory entry classification, relay descriptors, host instance
// snapshots, and per-pass summaries. Keeping them separate from the
// capability contracts improves code organization and maintainability.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"strings"
	"time"
)

// ModuleClass partitions the watched directory by naming convention. A file
// belongs to exactly one class; relay and host modules never overlap.
type ModuleClass int

const (
	ClassDisabled ModuleClass = iota
	ClassHost
	ClassRelay
)

// String returns a human-readable representation of the module class.
func (c ModuleClass) String() string {
	switch c {
	case ClassHost:
		return "host"
	case ClassRelay:
		return "relay"
	case ClassDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ModuleFile is one candidate binary discovered in the watched directory.
//
// Name is the reconciliation identity: two binaries sharing a file name are
// treated as the same logical module regardless of their declared identity.
type ModuleFile struct {
	// Name is the bare file name within the watched directory.
	Name string `json:"name"`

	// Path is the absolute path of the file at scan time.
	Path string `json:"path"`

	// Class is the naming-convention classification.
	Class ModuleClass `json:"class"`
}

// RelayDescriptor is the read-only record built for a relay-class module.
// Descriptors are immutable once built; the catalog replaces the whole set
// atomically on every rebuild and never patches it incrementally.
type RelayDescriptor struct {
	// ID uniquely identifies the relay module (case-insensitive). On a
	// collision the descriptor from the lexicographically first file name
	// wins and the rest are dropped and reported.
	ID string `json:"id"`

	// TypeName names the implementing type inside the payload, as
	// declared by the module manifest. Opaque to this subsystem.
	TypeName string `json:"type_name"`

	// Version defaults to "1.0.0" when the module declares none.
	Version string `json:"version"`

	// Payload is the verbatim module binary.
	Payload []byte `json:"-"`

	// InitPayload is the verbatim content of the optional init sidecar,
	// or nil when no sidecar exists.
	InitPayload []byte `json:"-"`

	// CacheKey is ID and Version combined, for downstream caching.
	CacheKey string `json:"cache_key"`

	// SourceFile is the file name the descriptor was built from.
	SourceFile string `json:"source_file"`

	// BuiltAt records when the descriptor was assembled.
	BuiltAt time.Time `json:"built_at"`
}

// relayCacheKey builds the canonical cache key for a relay module.
func relayCacheKey(id, version string) string {
	return id + "@" + version
}

// HostInstanceInfo is a point-in-time, read-only snapshot of one live host
// extension instance. The live instance itself is exclusively owned by the
// registry and never escapes it.
type HostInstanceInfo struct {
	// Name and Version are the identity the extension declared.
	Name    string `json:"name"`
	Version string `json:"version"`

	// SourceFile is the origin file name, the reconciliation key.
	SourceFile string `json:"source_file"`

	// HasUI reports whether the instance registered with the UI registry.
	HasUI bool `json:"has_ui"`

	// Checksum is the hex SHA-256 of the binary image at load time. It
	// plays no part in reconciliation; it exists so operators can tell
	// two same-named binaries apart after the fact.
	Checksum string `json:"checksum"`

	// LoadedAt records when the instance was initialized.
	LoadedAt time.Time `json:"loaded_at"`
}

// PassSummary describes the outcome of one completed reconciliation or
// rebuild pass. One summary is logged per pass; subscribers receive a
// payload-less notification and must re-read the current snapshot.
type PassSummary struct {
	// PassID correlates all log lines of one pass.
	PassID string `json:"pass_id"`

	// Directory is the watched directory the pass ran against.
	Directory string `json:"directory"`

	Added      int `json:"added"`
	Removed    int `json:"removed"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`

	// Example names per category, capped at maxSummaryExamples with the
	// overflow collapsed to "and N more".
	AddedExamples   []string `json:"added_examples,omitempty"`
	RemovedExamples []string `json:"removed_examples,omitempty"`
	FailedExamples  []string `json:"failed_examples,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// maxSummaryExamples caps how many names a pass summary spells out per
// category before collapsing the overflow.
const maxSummaryExamples = 5

// capExamples returns at most maxSummaryExamples names from the input.
func capExamples(names []string) []string {
	if len(names) <= maxSummaryExamples {
		return names
	}
	return names[:maxSummaryExamples]
}

// formatExamples renders a capped example list for log output, collapsing
// overflow into "and N more".
func formatExamples(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	if len(names) <= maxSummaryExamples {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more",
		strings.Join(names[:maxSummaryExamples], ", "),
		len(names)-maxSummaryExamples)
}

// relay_catalog.go: Read-only catalog of relay-class extension modules
//
// Relay modules target a separate execution environment and are never
// executed in-process; the catalog packages each one as an opaque payload
// plus optional init sidecar bytes. Every rebuild constructs the entire
// descriptor set from scratch and publishes it with a single pointer swap,
// so readers always observe a complete, immutable set.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-timecache"
)

// RelayCatalog builds and publishes relay descriptors for the watched
// directory. Rebuilds are serialized by the catalog's lock; reads are
// lock-free against the last published snapshot.
type RelayCatalog struct {
	scanner *DirectoryScanner
	logger  Logger

	mu       sync.Mutex
	snapshot atomic.Pointer[[]RelayDescriptor]
}

// NewRelayCatalog creates a catalog over the given scanner.
func NewRelayCatalog(scanner *DirectoryScanner, logger any) *RelayCatalog {
	c := &RelayCatalog{
		scanner: scanner,
		logger:  NewLogger(logger),
	}
	empty := make([]RelayDescriptor, 0)
	c.snapshot.Store(&empty)
	return c
}

// Rebuild re-scans the directory and replaces the published descriptor set
// atomically. Per-file failures are logged and skipped; duplicate ids keep
// the descriptor from the lexicographically first file name and drop the
// rest. The previous set stays visible until the swap, so readers never
// observe a partially rebuilt catalog.
func (c *RelayCatalog) Rebuild(directory string) (PassSummary, error) {
	files, err := c.scanner.Scan(directory)
	if err != nil {
		return PassSummary{Directory: directory}, err
	}
	return c.rebuildFiles(directory, files), nil
}

// rebuildFiles rebuilds the descriptor set from an already scanned file set,
// so a pass that also reconciles host instances hands both halves the same
// directory snapshot.
func (c *RelayCatalog) rebuildFiles(directory string, files []ModuleFile) PassSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := PassSummary{Directory: directory}

	convention := c.scanner.Convention()
	built := make([]RelayDescriptor, 0, len(files))
	seen := make(map[string]string) // lowercased id -> winning file name
	var added, failed []string

	// files arrive in ascending name order, which decides collisions.
	for _, file := range files {
		if file.Class != ClassRelay {
			continue
		}

		payload, readErr := os.ReadFile(file.Path)
		if readErr != nil {
			c.logger.Warn("Skipping unreadable relay module",
				"file", file.Name, "error", readErr)
			failed = append(failed, file.Name)
			continue
		}

		manifest, mErr := manifestOrDefaults(file, convention)
		if mErr != nil {
			c.logger.Warn("Skipping relay module with invalid manifest",
				"file", file.Name, "error", mErr)
			failed = append(failed, file.Name)
			continue
		}

		key := strings.ToLower(manifest.Name)
		if winner, dup := seen[key]; dup {
			dupErr := NewDuplicateIdentityError(manifest.Name, winner, file.Name)
			c.logger.Warn("Dropping relay module with duplicate id",
				"id", manifest.Name,
				"kept_file", winner,
				"dropped_file", file.Name,
				"error", dupErr)
			summary.Duplicates++
			continue
		}
		seen[key] = file.Name

		initPayload, initErr := readSidecar(file.Path, convention.InitSidecar(file.Name))
		if initErr != nil {
			c.logger.Warn("Cannot read init sidecar, descriptor built without it",
				"file", file.Name, "error", initErr)
		}

		built = append(built, RelayDescriptor{
			ID:          manifest.Name,
			TypeName:    manifest.TypeName,
			Version:     manifest.Version,
			Payload:     payload,
			InitPayload: initPayload,
			CacheKey:    relayCacheKey(manifest.Name, manifest.Version),
			SourceFile:  file.Name,
			BuiltAt:     timecache.CachedTime(),
		})
		added = append(added, file.Name)
	}

	c.snapshot.Store(&built)

	summary.Added = len(added)
	summary.Failed = len(failed)
	summary.AddedExamples = capExamples(added)
	summary.FailedExamples = capExamples(failed)
	summary.CompletedAt = timecache.CachedTime()

	c.logger.Info("Relay catalog rebuilt",
		"directory", directory,
		"descriptors", len(built),
		"failed", summary.Failed,
		"duplicates", summary.Duplicates,
		"built", formatExamples(added),
		"skipped", formatExamples(failed))

	return summary
}

// Snapshot returns the current descriptor set. The returned slice is a
// point-in-time copy; descriptors themselves are immutable.
func (c *RelayCatalog) Snapshot() []RelayDescriptor {
	current := c.snapshot.Load()
	out := make([]RelayDescriptor, len(*current))
	copy(out, *current)
	return out
}

// Descriptor looks up one descriptor by id, case-insensitively.
func (c *RelayCatalog) Descriptor(id string) (RelayDescriptor, bool) {
	for _, desc := range *c.snapshot.Load() {
		if strings.EqualFold(desc.ID, id) {
			return desc, true
		}
	}
	return RelayDescriptor{}, false
}

// host_registry.go: Live host extension instances and diff reconciliation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// HostRegistry owns the live host-class instances for one watched
// directory. Instances are keyed by their origin file name; the registry is
// the only component that creates, initializes, registers, or disposes
// them.
type HostRegistry struct {
	scanner     *DirectoryScanner
	loader      *IsolatedLoader
	uiRegistry  UIRegistry
	hostCtx     HostContext
	initTimeout time.Duration
	logger      Logger

	// instances is mutated only inside Reconcile and DisposeAll, which
	// the owning host serializes; mu guards the map against concurrent
	// snapshot readers.
	mu        sync.RWMutex
	instances map[string]*hostInstance
}

// hostInstance is the registry-private record of one live instance.
type hostInstance struct {
	info         HostInstanceInfo
	ext          HostExtension
	arenaIndex   int
	uiRegistered bool

	// Source file fingerprint at load time, used to detect supersession
	// (same name, rebuilt binary) during the diff.
	modTime time.Time
	size    int64
}

// NewHostRegistry creates a registry. uiRegistry may be nil when the host
// has no UI surface; UI-capable extensions then simply load without
// registering.
func NewHostRegistry(scanner *DirectoryScanner, loader *IsolatedLoader, hostCtx HostContext, uiRegistry UIRegistry, initTimeout time.Duration, logger any) *HostRegistry {
	return &HostRegistry{
		scanner:     scanner,
		loader:      loader,
		uiRegistry:  uiRegistry,
		hostCtx:     hostCtx,
		initTimeout: initTimeout,
		logger:      NewLogger(logger),
		instances:   make(map[string]*hostInstance),
	}
}

// Reconcile runs one scan-diff-apply cycle against the directory.
//
// Removals (files gone or superseded by a rebuilt binary) are applied first
// in their entirety, so a stale instance never coexists with its
// replacement; additions follow in ascending file name order. A failure on
// one module never blocks the remaining modules in the same pass.
//
// Callers must serialize Reconcile and DisposeAll per directory; the
// ExtensionHost does so with its pass lock.
func (r *HostRegistry) Reconcile(ctx context.Context, directory string) (PassSummary, error) {
	files, err := r.scanner.Scan(directory)
	if err != nil {
		return PassSummary{Directory: directory}, err
	}
	return r.reconcileFiles(ctx, directory, files), nil
}

// reconcileFiles applies one diff cycle over an already scanned file set, so
// a pass that also rebuilds the relay catalog hands both halves the same
// directory snapshot.
func (r *HostRegistry) reconcileFiles(ctx context.Context, directory string, files []ModuleFile) PassSummary {
	summary := PassSummary{Directory: directory}

	current := make(map[string]ModuleFile)
	ordered := make([]ModuleFile, 0, len(files))
	for _, file := range files {
		if file.Class != ClassHost {
			continue
		}
		current[file.Name] = file
		ordered = append(ordered, file)
	}

	removals := r.diffRemovals(current)
	for _, name := range removals {
		r.removeInstance(name)
	}

	var added, failed []string
	for _, file := range ordered {
		r.mu.RLock()
		_, live := r.instances[file.Name]
		r.mu.RUnlock()
		if live {
			continue
		}
		if addErr := r.addInstance(ctx, file); addErr != nil {
			r.logger.Warn("Host module did not load this cycle",
				"file", file.Name, "error", addErr)
			failed = append(failed, file.Name)
			continue
		}
		added = append(added, file.Name)
	}

	summary.Added = len(added)
	summary.Removed = len(removals)
	summary.Failed = len(failed)
	summary.AddedExamples = capExamples(added)
	summary.RemovedExamples = capExamples(removals)
	summary.FailedExamples = capExamples(failed)
	summary.CompletedAt = timecache.CachedTime()

	r.logger.Info("Host reconciliation completed",
		"directory", directory,
		"added", summary.Added,
		"removed", summary.Removed,
		"failed", summary.Failed,
		"live", r.LiveCount(),
		"added_files", formatExamples(added),
		"removed_files", formatExamples(removals),
		"failed_files", formatExamples(failed))

	return summary
}

// diffRemovals returns, in ascending order, the origin file names whose
// instances must go: the file disappeared, or it is still present but its
// fingerprint no longer matches the one recorded at load time (the binary
// was rebuilt under the same name and the instance is superseded).
func (r *HostRegistry) diffRemovals(current map[string]ModuleFile) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var removals []string
	for name, inst := range r.instances {
		file, present := current[name]
		if !present {
			removals = append(removals, name)
			continue
		}
		stat, err := os.Stat(file.Path)
		if err != nil {
			// Scan saw it but it is gone now; the instance goes too.
			removals = append(removals, name)
			continue
		}
		if !stat.ModTime().Equal(inst.modTime) || stat.Size() != inst.size {
			removals = append(removals, name)
		}
	}
	sort.Strings(removals)
	return removals
}

// removeInstance revokes UI registration, disposes the instance if it is
// disposable, releases its arena entry, and drops it from the live set.
// Each step is attempted regardless of earlier failures.
func (r *HostRegistry) removeInstance(name string) {
	r.mu.RLock()
	inst := r.instances[name]
	r.mu.RUnlock()
	if inst == nil {
		return
	}

	if inst.uiRegistered && r.uiRegistry != nil {
		if err := r.uiRegistry.UnregisterUIExtension(inst.info.Name); err != nil {
			r.logger.Warn("UI unregistration failed during removal",
				"extension", inst.info.Name, "file", name, "error", err)
		}
	}

	if closer, ok := inst.ext.(io.Closer); ok {
		if err := safeClose(closer); err != nil {
			r.logger.Warn("Error disposing extension",
				"extension", inst.info.Name, "file", name, "error", err)
		}
	}

	if err := r.loader.Release(inst.arenaIndex); err != nil {
		r.logger.Error("Module release not verified",
			"file", name, "arena_index", inst.arenaIndex, "error", err)
	}

	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()
	r.logger.Info("Host extension removed",
		"extension", inst.info.Name, "file", name)
}

// addInstance loads, initializes, and (for UI-capable extensions)
// registers one host module.
func (r *HostRegistry) addInstance(ctx context.Context, file ModuleFile) error {
	stat, err := os.Stat(file.Path)
	if err != nil {
		return NewLoadFailureError(file.Name, err)
	}

	mod, err := r.loader.Load(file)
	if err != nil {
		return err
	}

	info := mod.Extension.Info()
	if info.Name == "" {
		info.Name = r.scanner.Convention().BaseName(file.Name)
	}
	if info.Version == "" {
		info.Version = mod.Manifest.Version
	}

	if initErr := r.initialize(ctx, mod.Extension); initErr != nil {
		// Instantiated but uninitialized: discard, release, move on.
		if relErr := r.loader.Release(mod.ArenaIndex); relErr != nil {
			r.logger.Error("Module release not verified",
				"file", file.Name, "arena_index", mod.ArenaIndex, "error", relErr)
		}
		return NewInitializationFailureError(info.Name, file.Name, initErr)
	}

	inst := &hostInstance{
		info: HostInstanceInfo{
			Name:       info.Name,
			Version:    info.Version,
			SourceFile: file.Name,
			Checksum:   mod.Checksum,
			LoadedAt:   mod.LoadedAt,
		},
		ext:        mod.Extension,
		arenaIndex: mod.ArenaIndex,
		modTime:    stat.ModTime(),
		size:       stat.Size(),
	}

	if uiExt, ok := mod.Extension.(UIExtension); ok && r.uiRegistry != nil {
		if uiErr := r.uiRegistry.RegisterUIExtension(info.Name, uiExt); uiErr != nil {
			r.logger.Warn("UI registration failed, extension stays loaded without UI",
				"extension", info.Name, "file", file.Name,
				"error", NewUIRegistrationError(info.Name, uiErr))
		} else {
			inst.uiRegistered = true
			inst.info.HasUI = true
		}
	}

	r.mu.Lock()
	r.instances[file.Name] = inst
	r.mu.Unlock()
	r.logger.Info("Host extension loaded",
		"extension", info.Name,
		"version", info.Version,
		"file", file.Name,
		"ui", inst.info.HasUI)
	return nil
}

// initialize runs the extension's Initialize under the configured timeout,
// converting panics from the untrusted module into errors.
func (r *HostRegistry) initialize(ctx context.Context, ext HostExtension) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during initialize: %v", p)
		}
	}()

	initCtx := ctx
	if r.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, r.initTimeout)
		defer cancel()
	}
	return ext.Initialize(initCtx, r.hostCtx)
}

// safeClose disposes an extension, converting panics into errors.
func safeClose(closer io.Closer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during dispose: %v", p)
		}
	}()
	return closer.Close()
}

// Snapshot returns read-only, point-in-time records of the live instances,
// ordered by source file name.
func (r *HostRegistry) Snapshot() []HostInstanceInfo {
	r.mu.RLock()
	out := make([]HostInstanceInfo, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst.info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SourceFile < out[j].SourceFile })
	return out
}

// LiveCount returns the number of live instances.
func (r *HostRegistry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// DisposeAll removes every live instance. Used at host shutdown.
func (r *HostRegistry) DisposeAll() {
	r.mu.RLock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		r.removeInstance(name)
	}
}

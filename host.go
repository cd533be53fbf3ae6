// host.go: ExtensionHost facade tying scanner, loader, catalog, registry
// and watcher together
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// HostDependencies carries the collaborators the embedding application
// supplies. Every field is optional; zero values mean a no-op logger, an
// empty host context, no UI surface, and the platform binary backend.
type HostDependencies struct {
	Logger      any
	HostContext HostContext
	UIRegistry  UIRegistry
	Backend     BinaryBackend
}

// ExtensionHost is the top-level component of this package. It owns the
// per-directory pass lock that makes reconciliation and rebuild mutually
// exclusive, runs one synchronous pass at startup, and emits exactly one
// payload-less change notification per completed pass (including failed
// passes) so subscribers re-read the current snapshots.
type ExtensionHost struct {
	logger   Logger
	scanner  *DirectoryScanner
	loader   *IsolatedLoader
	registry *HostRegistry
	catalog  *RelayCatalog

	// optsMu guards opts and the watcher pointer, both replaced by
	// options hot-reload.
	optsMu  sync.RWMutex
	opts    HostOptions
	watcher *DirectoryWatcher

	// passMu serializes reconciliation/rebuild passes for the directory.
	passMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []func()

	started atomic.Bool
	stopped atomic.Bool
}

// NewExtensionHost validates the options and wires the components. Nothing
// is scanned or watched until Start.
func NewExtensionHost(opts HostOptions, deps HostDependencies) (*ExtensionHost, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(deps.Logger)
	hostCtx := deps.HostContext
	if hostCtx == nil {
		hostCtx = NewHostContext(logger, nil)
	}

	convention := NamingConvention{ModuleExt: opts.ModuleExtension}
	scanner := NewDirectoryScanner(convention, logger)
	loader := NewIsolatedLoader(convention, LoaderOptions{
		Backend:       deps.Backend,
		DependencyDir: opts.DependencyDir,
		StagingRoot:   opts.StagingDir,
	}, logger)

	h := &ExtensionHost{
		logger:   logger,
		scanner:  scanner,
		loader:   loader,
		registry: NewHostRegistry(scanner, loader, hostCtx, deps.UIRegistry, opts.InitializeTimeout, logger),
		catalog:  NewRelayCatalog(scanner, logger),
		opts:     opts,
	}
	h.watcher = newDirectoryWatcher(opts.Directory, opts.DebounceWindow, func() {
		_ = h.runPass(context.Background(), "filesystem change")
	}, logger)
	return h, nil
}

// OnChange subscribes to pass-completion notifications. The callback
// carries no payload; read HostInstances and RelayDescriptors for the
// current state. Callbacks run synchronously at the end of a pass and must
// not block.
func (h *ExtensionHost) OnChange(fn func()) {
	if fn == nil {
		return
	}
	h.handlersMu.Lock()
	h.handlers = append(h.handlers, fn)
	h.handlersMu.Unlock()
}

// Start runs one synchronous pass (creating the directory if needed) and
// then begins watching. A DirectoryUnavailable failure is fatal to starting
// the watch: the error is returned and nothing is watched.
func (h *ExtensionHost) Start(ctx context.Context) error {
	if h.stopped.Load() {
		return fmt.Errorf("extension host has been stopped and cannot be restarted")
	}
	if !h.started.CompareAndSwap(false, true) {
		return fmt.Errorf("extension host is already started")
	}

	if err := h.runPass(ctx, "initial scan"); err != nil {
		h.started.Store(false)
		return err
	}

	h.optsMu.RLock()
	watcher := h.watcher
	h.optsMu.RUnlock()
	if err := watcher.Start(); err != nil {
		h.started.Store(false)
		return err
	}
	return nil
}

// Stop stops watching and disposes every live host instance. Safe to call
// more than once.
func (h *ExtensionHost) Stop(ctx context.Context) error {
	if !h.stopped.CompareAndSwap(false, true) {
		return nil
	}

	h.optsMu.RLock()
	watcher := h.watcher
	h.optsMu.RUnlock()
	watcher.Stop()

	h.passMu.Lock()
	defer h.passMu.Unlock()
	h.registry.DisposeAll()
	h.logger.Info("Extension host stopped", "live_modules", h.loader.LiveCount())
	return nil
}

// runPass executes one scan-diff-apply cycle: a single directory scan, host
// reconciliation first, relay rebuild second (both over the same scan
// result), one notification at the end regardless of outcome. Passes for
// the directory are mutually exclusive; a pass always completes (skipping
// failing files) before releasing the lock.
func (h *ExtensionHost) runPass(ctx context.Context, trigger string) error {
	h.passMu.Lock()
	defer h.passMu.Unlock()

	if h.stopped.Load() {
		return nil
	}

	h.optsMu.RLock()
	directory := h.opts.Directory
	h.optsMu.RUnlock()

	passID := uuid.NewString()
	log := h.logger.With("pass_id", passID)
	log.Debug("Reconciliation pass starting",
		"directory", directory, "trigger", trigger)

	// One scan feeds both halves, so the host and relay sides of a pass
	// always observe the same directory state.
	files, scanErr := h.scanner.Scan(directory)
	if scanErr != nil {
		log.Error("Directory scan failed", "directory", directory, "error", scanErr)
		// Exactly one notification per pass, failed passes included.
		h.notify()
		return scanErr
	}

	hostSummary := h.registry.reconcileFiles(ctx, directory, files)
	hostSummary.PassID = passID

	relaySummary := h.catalog.rebuildFiles(directory, files)
	relaySummary.PassID = passID

	log.Info("Reconciliation pass completed",
		"directory", directory,
		"trigger", trigger,
		"host_added", hostSummary.Added,
		"host_removed", hostSummary.Removed,
		"host_failed", hostSummary.Failed,
		"relay_descriptors", relaySummary.Added,
		"relay_duplicates", relaySummary.Duplicates)

	h.notify()
	return nil
}

// notify invokes every subscriber once, shielding the pass from panicking
// callbacks.
func (h *ExtensionHost) notify() {
	h.handlersMu.RLock()
	handlers := make([]func(), len(h.handlers))
	copy(handlers, h.handlers)
	h.handlersMu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer withStackRecover(h.logger)()
			fn()
		}()
	}
}

// HostInstances returns a point-in-time snapshot of the live host
// instances.
func (h *ExtensionHost) HostInstances() []HostInstanceInfo {
	return h.registry.Snapshot()
}

// RelayDescriptors returns the current relay descriptor set.
func (h *ExtensionHost) RelayDescriptors() []RelayDescriptor {
	return h.catalog.Snapshot()
}

// RelayDescriptor looks up one relay descriptor by id, case-insensitively.
func (h *ExtensionHost) RelayDescriptor(id string) (RelayDescriptor, bool) {
	return h.catalog.Descriptor(id)
}

// Options returns the currently effective options.
func (h *ExtensionHost) Options() HostOptions {
	h.optsMu.RLock()
	defer h.optsMu.RUnlock()
	return h.opts
}

// ApplyOptions applies a changed options set at runtime. The debounce
// window takes effect immediately; a directory change restarts the watcher
// against the new directory and runs a full pass. Fields that cannot change
// at runtime (module extension, staging and dependency directories,
// initialize timeout) are reported and left as they were.
func (h *ExtensionHost) ApplyOptions(ctx context.Context, next HostOptions) error {
	next = next.withDefaults()
	if err := next.Validate(); err != nil {
		return err
	}

	h.optsMu.Lock()
	prev := h.opts
	if next.ModuleExtension != prev.ModuleExtension ||
		next.DependencyDir != prev.DependencyDir ||
		next.StagingDir != prev.StagingDir ||
		next.InitializeTimeout != prev.InitializeTimeout {
		h.logger.Warn("Ignoring options that cannot change at runtime",
			"module_extension", next.ModuleExtension,
			"dependency_dir", next.DependencyDir,
			"staging_dir", next.StagingDir,
			"initialize_timeout", next.InitializeTimeout.String())
	}
	h.opts.DebounceWindow = next.DebounceWindow
	h.watcher.SetWindow(next.DebounceWindow)

	directoryChanged := next.Directory != prev.Directory
	if directoryChanged {
		h.opts.Directory = next.Directory
		old := h.watcher
		h.watcher = newDirectoryWatcher(next.Directory, next.DebounceWindow, func() {
			_ = h.runPass(context.Background(), "filesystem change")
		}, h.logger)
		h.optsMu.Unlock()

		old.Stop()
		h.logger.Info("Extension directory changed",
			"previous", prev.Directory, "current", next.Directory)
		if err := h.runPass(ctx, "directory change"); err != nil {
			return err
		}
		if h.started.Load() && !h.stopped.Load() {
			h.optsMu.RLock()
			watcher := h.watcher
			h.optsMu.RUnlock()
			return watcher.Start()
		}
		return nil
	}

	h.optsMu.Unlock()
	if next.DebounceWindow != prev.DebounceWindow {
		h.logger.Info("Debounce window updated",
			"previous", prev.DebounceWindow.String(),
			"current", next.DebounceWindow.String())
	}
	return nil
}

// LiveModuleCount returns the number of arena entries not yet released.
func (h *ExtensionHost) LiveModuleCount() int {
	return h.loader.LiveCount()
}

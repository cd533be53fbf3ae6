// watcher.go: Debounced directory change watching
//
// The watcher is a per-directory state machine: Idle moves to PendingReload
// on the first filesystem event, one reconciliation is scheduled a fixed
// delay later, and further events while pending schedule nothing. A burst
// of N events therefore collapses into exactly one pass after the window
// closes. Watcher infrastructure failures tear the watcher down and restart
// it; they never propagate to process failure.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchIdle int32 = iota
	watchPending
)

// watcherRestartDelay spaces out recreation attempts after an
// infrastructure failure.
const watcherRestartDelay = time.Second

// DirectoryWatcher watches one directory and invokes the reconcile callback
// once per debounce window. Callbacks run on the timer goroutine; the
// callback itself is responsible for pass serialization.
type DirectoryWatcher struct {
	directory string
	reconcile func()
	logger    Logger

	// window is the debounce delay in nanoseconds, atomically updated by
	// options hot-reload.
	window atomic.Int64

	state   atomic.Int32
	stopped atomic.Bool

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newDirectoryWatcher(directory string, window time.Duration, reconcile func(), logger Logger) *DirectoryWatcher {
	w := &DirectoryWatcher{
		directory: directory,
		reconcile: reconcile,
		logger:    logger,
	}
	w.window.Store(int64(window))
	return w
}

// Start creates the underlying filesystem watcher and begins observing the
// directory. The directory must exist; the host runs its initial scan
// (which creates it) before starting the watcher.
func (w *DirectoryWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped.Load() {
		return NewWatcherFailureError(w.directory, nil)
	}
	if w.fsw != nil {
		return nil // already watching
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return NewWatcherFailureError(w.directory, err)
	}
	if err := fsw.Add(w.directory); err != nil {
		_ = fsw.Close()
		return NewWatcherFailureError(w.directory, err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	SafeGo(w.logger, func() { w.run(fsw) })

	w.logger.Info("Directory watcher started",
		"directory", w.directory,
		"debounce_window", time.Duration(w.window.Load()).String())
	return nil
}

// Stop permanently stops the watcher. A pending debounce timer may still
// fire afterwards; it observes the stopped flag and does nothing.
func (w *DirectoryWatcher) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		close(w.done)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.logger.Info("Directory watcher stopped", "directory", w.directory)
}

// SetWindow updates the debounce window for subsequent bursts.
func (w *DirectoryWatcher) SetWindow(window time.Duration) {
	w.window.Store(int64(window))
}

// run consumes events until the watcher is closed. Any event kind (create,
// write, remove, rename, chmod) arms the debounce; the event payload is
// irrelevant because a pass always re-scans the whole directory.
func (w *DirectoryWatcher) run(fsw *fsnotify.Watcher) {
	for {
		select {
		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.trigger()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher infrastructure failure, restarting",
				"error", NewWatcherFailureError(w.directory, err))
			w.restart(fsw)
			return
		case <-w.done:
			return
		}
	}
}

// trigger arms the debounce timer on the Idle -> PendingReload transition.
// Events arriving while pending are deliberately absorbed.
func (w *DirectoryWatcher) trigger() {
	if w.stopped.Load() {
		return
	}
	if !w.state.CompareAndSwap(watchIdle, watchPending) {
		return
	}
	delay := time.Duration(w.window.Load())
	time.AfterFunc(delay, w.firePending)
}

// firePending runs one reconciliation and returns the state machine to
// Idle only after the pass has completed.
func (w *DirectoryWatcher) firePending() {
	defer w.state.Store(watchIdle)
	if w.stopped.Load() {
		return
	}
	defer withStackRecover(w.logger)()
	w.reconcile()
}

// restart replaces a failed filesystem watcher, retrying until it succeeds
// or the watcher is stopped.
func (w *DirectoryWatcher) restart(failed *fsnotify.Watcher) {
	_ = failed.Close()

	SafeGo(w.logger, func() {
		for !w.stopped.Load() {
			fsw, err := fsnotify.NewWatcher()
			if err == nil {
				err = fsw.Add(w.directory)
				if err != nil {
					_ = fsw.Close()
				}
			}
			if err == nil {
				w.mu.Lock()
				if w.stopped.Load() {
					w.mu.Unlock()
					_ = fsw.Close()
					return
				}
				w.fsw = fsw
				w.mu.Unlock()

				SafeGo(w.logger, func() { w.run(fsw) })
				w.logger.Info("Directory watcher restarted", "directory", w.directory)
				// Changes may have happened while the watcher was down.
				w.trigger()
				return
			}

			w.logger.Warn("Watcher restart attempt failed",
				"directory", w.directory, "error", err)
			time.Sleep(watcherRestartDelay)
		}
	})
}

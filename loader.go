// loader.go: Isolated, single-use module loading
//
// Each load attempt runs inside a disposable session: the binary is read
// fully into memory up front (the file may be replaced or deleted the moment
// the read finishes), staged into a fresh per-attempt directory, and opened
// through the binary backend with a dependency resolver scoped to this one
// attempt. The session is torn down on every exit path. Successful loads
// enter an indexed arena whose release is explicitly verified rather than
// assumed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// LoadedModule is the result of one successful load attempt.
type LoadedModule struct {
	File      ModuleFile
	Extension HostExtension
	Manifest  *ModuleManifest

	// Checksum is the hex SHA-256 of the binary image as read.
	Checksum string

	// ArenaIndex identifies the live entry; pass it to Release on
	// teardown.
	ArenaIndex int

	LoadedAt time.Time
}

// LoaderOptions configures an IsolatedLoader.
type LoaderOptions struct {
	// Backend opens staged binaries. Nil means the platform backend.
	Backend BinaryBackend

	// DependencyDir is the side directory consulted as the last resolver
	// tier. Empty disables the side-directory fallback.
	DependencyDir string

	// StagingRoot is where per-attempt staging directories are created.
	// Empty means the system temp directory.
	StagingRoot string
}

// IsolatedLoader loads host-class module binaries, one disposable session
// per attempt. It is safe for concurrent use; sessions share nothing.
type IsolatedLoader struct {
	convention    NamingConvention
	backend       BinaryBackend
	dependencyDir string
	stagingRoot   string
	logger        Logger
	arena         *loadArena
}

// NewIsolatedLoader creates a loader for the given naming convention.
func NewIsolatedLoader(convention NamingConvention, opts LoaderOptions, logger any) *IsolatedLoader {
	backend := opts.Backend
	if backend == nil {
		backend = NewPlatformBackend()
	}
	return &IsolatedLoader{
		convention:    convention,
		backend:       backend,
		dependencyDir: opts.DependencyDir,
		stagingRoot:   opts.StagingRoot,
		logger:        NewLogger(logger),
		arena:         newLoadArena(),
	}
}

// Load performs one isolated load attempt. Any failure (read, staging,
// dependency resolution, open, entry discovery, panic) is returned as a
// coded error with file context; the caller logs it and skips the module,
// never failing the surrounding pass.
func (l *IsolatedLoader) Load(file ModuleFile) (*LoadedModule, error) {
	// Full read up front; the handle is never held past this point.
	image, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, NewLoadFailureError(file.Name, err)
	}
	sum := sha256.Sum256(image)
	checksum := hex.EncodeToString(sum[:])

	manifest, err := manifestOrDefaults(file, l.convention)
	if err != nil {
		return nil, err
	}

	session, err := l.newSession(file, image, manifest)
	if err != nil {
		return nil, err
	}
	defer session.cleanup()

	if err := session.stageDependencies(); err != nil {
		return nil, err
	}

	ext, err := session.open()
	if err != nil {
		return nil, err
	}

	index := l.arena.add(file.Name, checksum)
	l.logger.Debug("Module loaded",
		"file", file.Name,
		"checksum", checksum,
		"arena_index", index)

	return &LoadedModule{
		File:       file,
		Extension:  ext,
		Manifest:   manifest,
		Checksum:   checksum,
		ArenaIndex: index,
		LoadedAt:   timecache.CachedTime(),
	}, nil
}

// Release retires a live arena entry. Releasing an unknown or already
// released entry is a coded error, so incomplete teardown surfaces instead
// of going unnoticed.
func (l *IsolatedLoader) Release(index int) error {
	return l.arena.release(index)
}

// LiveCount returns the number of loaded modules not yet released.
func (l *IsolatedLoader) LiveCount() int {
	return l.arena.liveCount()
}

// loadSession is the disposable state of one load attempt. Its resolver
// exists only for the session's lifetime; cleanup runs on every exit path
// of Load, so no resolution state ever outlives the attempt.
type loadSession struct {
	loader     *IsolatedLoader
	file       ModuleFile
	manifest   *ModuleManifest
	resolver   *DependencyResolver
	stagingDir string
	binaryPath string
}

func (l *IsolatedLoader) newSession(file ModuleFile, image []byte, manifest *ModuleManifest) (*loadSession, error) {
	binary := image
	binaryName := file.Name
	var resources ResourceProvider
	if container, ok := openModuleContainer(image, l.convention); ok {
		data, err := container.primaryBytes()
		if err != nil {
			return nil, NewLoadFailureError(file.Name, err)
		}
		binary = data
		binaryName = container.primaryName()
		resources = container
		l.logger.Debug("Module is a container",
			"file", file.Name,
			"primary", binaryName,
			"resources", len(container.ResourceNames()))
	}

	stagingDir, err := os.MkdirTemp(l.stagingRoot, "goext-load-")
	if err != nil {
		return nil, NewLoadFailureError(file.Name, err)
	}
	binaryPath := filepath.Join(stagingDir, binaryName)
	if err := os.WriteFile(binaryPath, binary, 0o755); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, NewLoadFailureError(file.Name, err)
	}

	return &loadSession{
		loader:     l,
		file:       file,
		manifest:   manifest,
		resolver:   newDependencyResolver(file.Name, resources, l.dependencyDir, l.logger),
		stagingDir: stagingDir,
		binaryPath: binaryPath,
	}, nil
}

// stageDependencies resolves every manifest-declared dependency into the
// staging directory before the platform loader runs.
func (s *loadSession) stageDependencies() error {
	for _, dep := range s.manifest.Dependencies {
		data, err := s.resolver.Resolve(dep)
		if err != nil {
			return err
		}
		staged := filepath.Join(s.stagingDir, filepath.Base(dep))
		if writeErr := os.WriteFile(staged, data, 0o755); writeErr != nil {
			return NewLoadFailureError(s.file.Name, writeErr)
		}
	}
	return nil
}

// open loads the staged binary and discovers the entry point. Panics from
// the backend or from a misbehaving factory are recovered and reported as
// load failures.
func (s *loadSession) open() (ext HostExtension, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			s.loader.logger.Error("Panic during module load",
				"file", s.file.Name,
				"panic", r,
				"stack", string(buf[:n]))
			ext = nil
			err = NewLoadFailureError(s.file.Name, fmt.Errorf("panic during load: %v", r))
		}
	}()

	bin, openErr := s.loader.backend.Open(s.binaryPath, s.resolver.Resolve)
	if openErr != nil {
		// Resolver failures are already coded with file context.
		var coded *goerrors.Error
		if errors.As(openErr, &coded) {
			return nil, openErr
		}
		return nil, NewLoadFailureError(s.file.Name, openErr)
	}
	return s.discoverEntry(bin)
}

// discoverEntry selects the module's implementing extension: the factory
// symbol first, then the plain value symbol, in both value and pointer
// form. Absence of a usable entry point is NoImplementationFound.
func (s *loadSession) discoverEntry(bin BinaryModule) (HostExtension, error) {
	if sym, err := bin.Lookup(SymbolNewExtension); err == nil {
		switch factory := sym.(type) {
		case func() HostExtension:
			if ext := factory(); ext != nil {
				return ext, nil
			}
		case *func() HostExtension:
			if factory != nil && *factory != nil {
				if ext := (*factory)(); ext != nil {
					return ext, nil
				}
			}
		}
	}
	if sym, err := bin.Lookup(SymbolExtension); err == nil {
		switch value := sym.(type) {
		case HostExtension:
			return value, nil
		case *HostExtension:
			if value != nil && *value != nil {
				return *value, nil
			}
		}
	}
	return nil, NewNoImplementationError(s.file.Name)
}

// cleanup tears the session down: staging directory removed, resolver
// dropped. Runs on success, failure, and panic alike.
func (s *loadSession) cleanup() {
	if s.stagingDir != "" {
		if err := os.RemoveAll(s.stagingDir); err != nil {
			s.loader.logger.Warn("Failed to remove staging directory",
				"dir", s.stagingDir, "error", err)
		}
	}
	s.resolver = nil
}

// arenaTombstoneLimit bounds how many released entries the arena keeps.
// Indices are never reused, so telling a double release apart from a bogus
// index only needs recent history; older tombstones are retired so the
// arena stays bounded across reload cycles in a long-running host.
const arenaTombstoneLimit = 64

// loadArena indexes live loads. Entries are retired by release, which
// verifies the entry exists and has not been released before; released
// entries remain as tombstones (up to arenaTombstoneLimit, oldest evicted
// first) so a double release is distinguishable from a bogus index.
type loadArena struct {
	mu      sync.Mutex
	entries map[int]*arenaEntry
	retired []int
	next    int
}

type arenaEntry struct {
	file     string
	checksum string
	released bool
}

func newLoadArena() *loadArena {
	return &loadArena{entries: make(map[int]*arenaEntry)}
}

func (a *loadArena) add(file, checksum string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	index := a.next
	a.next++
	a.entries[index] = &arenaEntry{file: file, checksum: checksum}
	return index
}

func (a *loadArena) release(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[index]
	if !ok {
		return NewReleaseFailureError(index, "no such entry")
	}
	if entry.released {
		return NewReleaseFailureError(index, "already released")
	}
	entry.released = true

	a.retired = append(a.retired, index)
	if len(a.retired) > arenaTombstoneLimit {
		delete(a.entries, a.retired[0])
		a.retired = a.retired[1:]
	}
	return nil
}

func (a *loadArena) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := 0
	for _, entry := range a.entries {
		if !entry.released {
			live++
		}
	}
	return live
}

// testing_support_test.go: Shared fakes and helpers for the test suite
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// eventRecorder captures lifecycle events in order so tests can assert
// sequencing (remove-before-add in particular).
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) count(event string) int {
	n := 0
	for _, e := range r.all() {
		if e == event {
			n++
		}
	}
	return n
}

// indexOf returns the position of the first occurrence of event, or -1.
func (r *eventRecorder) indexOf(event string) int {
	for i, e := range r.all() {
		if e == event {
			return i
		}
	}
	return -1
}

// mockExtension implements HostExtension (and io.Closer) for tests.
type mockExtension struct {
	name     string
	version  string
	initErr  error
	recorder *eventRecorder
}

func (m *mockExtension) Info() ExtensionInfo {
	return ExtensionInfo{Name: m.name, Version: m.version}
}

func (m *mockExtension) Initialize(ctx context.Context, host HostContext) error {
	if m.recorder != nil {
		m.recorder.record("init:" + m.name)
	}
	return m.initErr
}

func (m *mockExtension) Close() error {
	if m.recorder != nil {
		m.recorder.record("close:" + m.name)
	}
	return nil
}

// mockUIExtension adds the UI capability on top of mockExtension.
type mockUIExtension struct {
	mockExtension
}

func (m *mockUIExtension) UIInfo() UIExtensionInfo {
	return UIExtensionInfo{Title: m.name}
}

// mockUIRegistry implements UIRegistry and records registrations.
type mockUIRegistry struct {
	mu         sync.Mutex
	recorder   *eventRecorder
	registered map[string]UIExtension
}

func newMockUIRegistry(recorder *eventRecorder) *mockUIRegistry {
	return &mockUIRegistry{
		recorder:   recorder,
		registered: make(map[string]UIExtension),
	}
}

func (r *mockUIRegistry) RegisterUIExtension(name string, ext UIExtension) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[name] = ext
	if r.recorder != nil {
		r.recorder.record("ui-register:" + name)
	}
	return nil
}

func (r *mockUIRegistry) UnregisterUIExtension(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, name)
	if r.recorder != nil {
		r.recorder.record("ui-unregister:" + name)
	}
	return nil
}

func (r *mockUIRegistry) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registered[name]
	return ok
}

// fakeBackend recognizes staged binaries by their content and hands out
// pre-registered fake modules. It mimics the platform loader's missing
// dependency behavior: registered requirements are looked up next to the
// staged binary and requested through the resolve hook when absent.
type fakeBackend struct {
	mu       sync.Mutex
	modules  map[string]BinaryModule // content -> module
	requires map[string][]string     // content -> required dependency files
	opens    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		modules:  make(map[string]BinaryModule),
		requires: make(map[string][]string),
	}
}

// register maps binary content to a module exporting the given symbols.
func (b *fakeBackend) register(content string, symbols map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modules[content] = &fakeModule{symbols: symbols}
}

// registerExtension maps binary content to a module exporting ext through
// the factory symbol.
func (b *fakeBackend) registerExtension(content string, ext HostExtension) {
	factory := func() HostExtension { return ext }
	b.register(content, map[string]any{SymbolNewExtension: factory})
}

func (b *fakeBackend) require(content string, deps ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requires[content] = deps
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func (b *fakeBackend) Open(path string, resolve ResolveFunc) (BinaryModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	b.mu.Lock()
	b.opens++
	deps := b.requires[content]
	module := b.modules[content]
	b.mu.Unlock()

	for _, dep := range deps {
		staged := filepath.Join(filepath.Dir(path), dep)
		if _, statErr := os.Stat(staged); statErr == nil {
			continue
		}
		if resolve == nil {
			return nil, fmt.Errorf("%s: cannot open shared object file", dep)
		}
		depData, resolveErr := resolve(dep)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if writeErr := os.WriteFile(staged, depData, 0o755); writeErr != nil {
			return nil, writeErr
		}
	}

	if module == nil {
		return nil, fmt.Errorf("unrecognized binary image")
	}
	return module, nil
}

type fakeModule struct {
	symbols map[string]any
}

func (m *fakeModule) Lookup(symbol string) (any, error) {
	sym, ok := m.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	return sym, nil
}

// writeFile creates a file with content inside dir.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// newTestLoader builds an IsolatedLoader over a fake backend with staging
// and side directories scoped to the test.
func newTestLoader(t *testing.T, backend BinaryBackend) *IsolatedLoader {
	t.Helper()
	return NewIsolatedLoader(NamingConvention{}, LoaderOptions{
		Backend:       backend,
		DependencyDir: filepath.Join(t.TempDir(), "deps"),
		StagingRoot:   t.TempDir(),
	}, NewTestLogger())
}

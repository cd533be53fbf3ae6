// host_registry_test.go: Host reconciliation lifecycle tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registryFixture struct {
	dir      string
	backend  *fakeBackend
	recorder *eventRecorder
	ui       *mockUIRegistry
	logger   *TestLogger
	registry *HostRegistry
	loader   *IsolatedLoader
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	f := &registryFixture{
		dir:      t.TempDir(),
		backend:  newFakeBackend(),
		recorder: &eventRecorder{},
		logger:   NewTestLogger(),
	}
	f.ui = newMockUIRegistry(f.recorder)

	convention := NamingConvention{}
	scanner := NewDirectoryScanner(convention, f.logger)
	f.loader = NewIsolatedLoader(convention, LoaderOptions{
		Backend:       f.backend,
		DependencyDir: filepath.Join(t.TempDir(), "deps"),
		StagingRoot:   t.TempDir(),
	}, f.logger)
	f.registry = NewHostRegistry(scanner, f.loader, NewHostContext(f.logger, nil), f.ui, time.Second, f.logger)
	return f
}

func (f *registryFixture) reconcile(t *testing.T) PassSummary {
	t.Helper()
	summary, err := f.registry.Reconcile(context.Background(), f.dir)
	require.NoError(t, err)
	return summary
}

func TestHostRegistry_AddAndInitialize(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha", version: "2.0.0", recorder: f.recorder})
	writeFile(t, f.dir, "Alpha.so", "module-a")

	summary := f.reconcile(t)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 0, summary.Removed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"Alpha.so"}, summary.AddedExamples)

	assert.Equal(t, 1, f.recorder.count("init:alpha"))
	assert.Equal(t, 1, f.registry.LiveCount())
	assert.Equal(t, 1, f.loader.LiveCount())

	snap := f.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "alpha", snap[0].Name)
	assert.Equal(t, "2.0.0", snap[0].Version)
	assert.Equal(t, "Alpha.so", snap[0].SourceFile)
	assert.False(t, snap[0].HasUI)
	assert.NotEmpty(t, snap[0].Checksum)
}

func TestHostRegistry_Idempotent(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha", recorder: f.recorder})
	writeFile(t, f.dir, "Alpha.so", "module-a")

	f.reconcile(t)
	second := f.reconcile(t)

	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 0, second.Removed)
	assert.Equal(t, 1, f.recorder.count("init:alpha"), "unchanged module must not reload")
	assert.Equal(t, 1, f.registry.LiveCount())
}

func TestHostRegistry_RemoveOnDelete(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha", recorder: f.recorder})
	path := writeFile(t, f.dir, "Alpha.so", "module-a")

	f.reconcile(t)
	require.NoError(t, os.Remove(path))
	summary := f.reconcile(t)

	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 1, f.recorder.count("close:alpha"))
	assert.Equal(t, 0, f.registry.LiveCount())
	assert.Equal(t, 0, f.loader.LiveCount(), "arena entry must be released on removal")
}

func TestHostRegistry_SupersededBinaryReloads(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a-v1", &mockExtension{name: "alpha", version: "1.0.0", recorder: f.recorder})
	f.backend.registerExtension("module-a-version2", &mockExtension{name: "alpha", version: "2.0.0", recorder: f.recorder})
	writeFile(t, f.dir, "Alpha.so", "module-a-v1")

	f.reconcile(t)
	// Rebuilt binary under the same name; the size change marks it
	// superseded regardless of timestamp granularity.
	writeFile(t, f.dir, "Alpha.so", "module-a-version2")
	summary := f.reconcile(t)

	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 1, summary.Added)
	// The stale instance is disposed before its replacement initializes.
	assert.Equal(t, []string{"init:alpha", "close:alpha", "init:alpha"}, f.recorder.all())

	snap := f.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "2.0.0", snap[0].Version)
	assert.Equal(t, 1, f.loader.LiveCount())
}

func TestHostRegistry_RemoveBeforeAddOrdering(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha", recorder: f.recorder})
	f.backend.registerExtension("module-b", &mockExtension{name: "beta", recorder: f.recorder})
	pathA := writeFile(t, f.dir, "Alpha.so", "module-a")

	f.reconcile(t)
	require.NoError(t, os.Remove(pathA))
	writeFile(t, f.dir, "Beta.so", "module-b")
	f.reconcile(t)

	closeIdx := f.recorder.indexOf("close:alpha")
	initIdx := f.recorder.indexOf("init:beta")
	require.GreaterOrEqual(t, closeIdx, 0)
	require.GreaterOrEqual(t, initIdx, 0)
	assert.Less(t, closeIdx, initIdx, "removals apply before additions in one pass")
}

func TestHostRegistry_InitializationFailureDiscards(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-bad", &mockExtension{
		name:     "bad",
		initErr:  errors.New("refusing to start"),
		recorder: f.recorder,
	})
	f.backend.registerExtension("module-good", &mockExtension{name: "good", recorder: f.recorder})
	writeFile(t, f.dir, "Bad.so", "module-bad")
	writeFile(t, f.dir, "Good.so", "module-good")

	summary := f.reconcile(t)

	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"Bad.so"}, summary.FailedExamples)
	assert.Equal(t, 1, f.registry.LiveCount(), "failure on one module must not block the rest")
	assert.Equal(t, 1, f.loader.LiveCount(), "failed instance's arena entry must be released")
	assert.False(t, f.logger.HasMessage("ERROR", "Module release not verified"))
}

func TestHostRegistry_PanicDuringInitialize(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.register("module-panic", map[string]any{
		SymbolNewExtension: func() HostExtension { return &panickyExtension{} },
	})
	writeFile(t, f.dir, "Panic.so", "module-panic")

	summary := f.reconcile(t)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, f.registry.LiveCount())
	assert.Equal(t, 0, f.loader.LiveCount())
}

type panickyExtension struct{}

func (p *panickyExtension) Info() ExtensionInfo { return ExtensionInfo{Name: "panicky"} }

func (p *panickyExtension) Initialize(ctx context.Context, host HostContext) error {
	panic("init explosion")
}

func TestHostRegistry_UIRegistrationLifecycle(t *testing.T) {
	f := newRegistryFixture(t)
	ui := &mockUIExtension{mockExtension{name: "dashboard", recorder: f.recorder}}
	f.backend.registerExtension("module-ui", ui)
	path := writeFile(t, f.dir, "Dashboard.so", "module-ui")

	f.reconcile(t)
	assert.True(t, f.ui.has("dashboard"))
	snap := f.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].HasUI)

	require.NoError(t, os.Remove(path))
	f.reconcile(t)

	assert.False(t, f.ui.has("dashboard"))
	// UI revoked before the instance is disposed.
	assert.Less(t, f.recorder.indexOf("ui-unregister:dashboard"), f.recorder.indexOf("close:dashboard"))
}

func TestHostRegistry_DeclaredIdentityDefaults(t *testing.T) {
	f := newRegistryFixture(t)
	// Extension declares nothing; name falls back to the file base name
	// and version to the manifest default.
	f.backend.registerExtension("module-anon", &mockExtension{})
	writeFile(t, f.dir, "Anon.so", "module-anon")

	f.reconcile(t)
	snap := f.registry.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Anon", snap[0].Name)
	assert.Equal(t, defaultModuleVersion, snap[0].Version)
}

func TestHostRegistry_DisposeAll(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha", recorder: f.recorder})
	f.backend.registerExtension("module-b", &mockExtension{name: "beta", recorder: f.recorder})
	writeFile(t, f.dir, "Alpha.so", "module-a")
	writeFile(t, f.dir, "Beta.so", "module-b")

	f.reconcile(t)
	require.Equal(t, 2, f.registry.LiveCount())

	f.registry.DisposeAll()
	assert.Equal(t, 0, f.registry.LiveCount())
	assert.Equal(t, 0, f.loader.LiveCount())
	assert.Equal(t, 1, f.recorder.count("close:alpha"))
	assert.Equal(t, 1, f.recorder.count("close:beta"))
}

func TestHostRegistry_RelayAndDisabledIgnored(t *testing.T) {
	f := newRegistryFixture(t)
	f.backend.registerExtension("module-a", &mockExtension{name: "alpha"})
	writeFile(t, f.dir, "Alpha.so", "module-a")
	writeFile(t, f.dir, "Bridge.Relay.so", "relay-payload")
	writeFile(t, f.dir, "Old.so.disabled", "module-a")

	summary := f.reconcile(t)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, f.registry.LiveCount())
}

// config.go: Host options with YAML loading and hot-reload support
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Default option values.
const (
	DefaultDebounceWindow    = 2 * time.Second
	DefaultInitializeTimeout = 30 * time.Second

	// dependencySubdir is the side-directory name next to the host
	// executable consulted as the last dependency-resolution tier.
	dependencySubdir = "deps"
)

// HostOptions configures an ExtensionHost.
type HostOptions struct {
	// Directory is the watched extension directory. Required.
	Directory string `yaml:"directory" json:"directory"`

	// ModuleExtension is the module file extension including the leading
	// dot. Defaults to DefaultModuleExtension.
	ModuleExtension string `yaml:"module_extension" json:"module_extension"`

	// DebounceWindow is the fixed delay between the first filesystem
	// event of a burst and the reconciliation pass it triggers.
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`

	// DependencyDir is the side directory for external dependencies.
	// Defaults to a "deps" directory next to the host executable and is
	// created on demand.
	DependencyDir string `yaml:"dependency_dir" json:"dependency_dir"`

	// StagingDir is where per-attempt staging directories are created.
	// Empty means the system temp directory.
	StagingDir string `yaml:"staging_dir" json:"staging_dir"`

	// InitializeTimeout bounds each extension's Initialize call.
	InitializeTimeout time.Duration `yaml:"initialize_timeout" json:"initialize_timeout"`
}

// DefaultHostOptions returns options for a directory with every other
// field defaulted.
func DefaultHostOptions(directory string) HostOptions {
	return HostOptions{Directory: directory}.withDefaults()
}

// withDefaults fills unset fields.
func (o HostOptions) withDefaults() HostOptions {
	if o.ModuleExtension == "" {
		o.ModuleExtension = DefaultModuleExtension
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.InitializeTimeout <= 0 {
		o.InitializeTimeout = DefaultInitializeTimeout
	}
	if o.DependencyDir == "" {
		o.DependencyDir = defaultDependencyDir()
	}
	return o
}

// defaultDependencyDir resolves the side directory next to the host's own
// executable. When the executable path cannot be determined the directory
// is relative to the working directory.
func defaultDependencyDir() string {
	exe, err := os.Executable()
	if err != nil {
		return dependencySubdir
	}
	return filepath.Join(filepath.Dir(exe), dependencySubdir)
}

// Validate checks the options for structural problems.
func (o HostOptions) Validate() error {
	if o.Directory == "" {
		return NewConfigError("", "Extension directory is required", nil)
	}
	if o.ModuleExtension != "" && o.ModuleExtension[0] != '.' {
		return NewConfigError("", "Module extension must start with a dot", nil)
	}
	return nil
}

// hostOptionsFile is the YAML document shape. Durations are written as Go
// duration strings ("2s", "500ms").
type hostOptionsFile struct {
	Directory         string       `yaml:"directory"`
	ModuleExtension   string       `yaml:"module_extension"`
	DebounceWindow    yamlDuration `yaml:"debounce_window"`
	DependencyDir     string       `yaml:"dependency_dir"`
	StagingDir        string       `yaml:"staging_dir"`
	InitializeTimeout yamlDuration `yaml:"initialize_timeout"`
}

type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = yamlDuration(parsed)
	return nil
}

// LoadHostOptions reads a YAML options file and returns validated options
// with defaults applied.
func LoadHostOptions(path string) (HostOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HostOptions{}, NewConfigError(path, "Cannot read options file", err)
	}
	var file hostOptionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return HostOptions{}, NewConfigError(path, "Cannot parse options file", err)
	}
	opts := HostOptions{
		Directory:         file.Directory,
		ModuleExtension:   file.ModuleExtension,
		DebounceWindow:    time.Duration(file.DebounceWindow),
		DependencyDir:     file.DependencyDir,
		StagingDir:        file.StagingDir,
		InitializeTimeout: time.Duration(file.InitializeTimeout),
	}.withDefaults()
	if err := opts.Validate(); err != nil {
		return HostOptions{}, err
	}
	return opts, nil
}

// OptionsWatcher hot-reloads a host's options file. Changes to the
// debounce window apply immediately; a directory change restarts the
// directory watcher and triggers a full pass. A file that stops parsing is
// logged and ignored; the previous options stay in effect.
type OptionsWatcher struct {
	host    *ExtensionHost
	path    string
	watcher *argus.Watcher
	logger  Logger
}

// NewOptionsWatcher creates a watcher over an options file for a running
// host.
func NewOptionsWatcher(host *ExtensionHost, path string, logger any) *OptionsWatcher {
	internalLogger := NewLogger(logger)
	watcher := argus.New(argus.Config{
		PollInterval:         2 * time.Second,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filePath string) {
			internalLogger.Error("Options file watching error",
				"error", err, "file", filePath)
		},
	})
	return &OptionsWatcher{
		host:    host,
		path:    path,
		watcher: watcher,
		logger:  internalLogger,
	}
}

// Start begins watching the options file.
func (ow *OptionsWatcher) Start() error {
	if err := ow.watcher.Watch(ow.path, ow.handleChange); err != nil {
		return NewConfigError(ow.path, "Cannot watch options file", err)
	}
	if err := ow.watcher.Start(); err != nil {
		return NewConfigError(ow.path, "Cannot start options watcher", err)
	}
	ow.logger.Info("Options watcher started", "path", ow.path)
	return nil
}

// Stop stops watching the options file.
func (ow *OptionsWatcher) Stop() error {
	if err := ow.watcher.Stop(); err != nil {
		return NewConfigError(ow.path, "Cannot stop options watcher", err)
	}
	return nil
}

// handleChange processes one options file change event from Argus.
func (ow *OptionsWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		ow.logger.Warn("Options file deleted, keeping previous options",
			"path", event.Path)
		return
	}

	opts, err := LoadHostOptions(event.Path)
	if err != nil {
		ow.logger.Error("Options reload failed, keeping previous options",
			"path", event.Path, "error", err)
		return
	}
	if err := ow.host.ApplyOptions(context.Background(), opts); err != nil {
		ow.logger.Error("Options apply failed",
			"path", event.Path, "error", err)
		return
	}
	ow.logger.Info("Options reloaded", "path", event.Path)
}

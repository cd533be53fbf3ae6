// errors.go: structured error definitions for the go-extensions system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"github.com/agilira/go-errors"
)

// Error codes for the go-extensions system
const (
	// Directory and scanning errors (1000-1099)
	ErrCodeDirectoryUnavailable = "EXT_1001"
	ErrCodeUnreadableEntry      = "EXT_1002"

	// Load errors (1100-1199)
	ErrCodeLoadFailure         = "LOAD_1101"
	ErrCodeNoImplementation    = "LOAD_1102"
	ErrCodeUnsupportedPlatform = "LOAD_1103"
	ErrCodeReleaseFailure      = "LOAD_1104"

	// Dependency resolution errors (1200-1299)
	ErrCodeDependencyUnresolved = "DEPS_1201"
	ErrCodeResourceExtraction   = "DEPS_1202"

	// Registry errors (1300-1399)
	ErrCodeInitializationFailure = "REGISTRY_1301"
	ErrCodeUIRegistration        = "REGISTRY_1302"

	// Catalog errors (1400-1499)
	ErrCodeDuplicateIdentity = "CATALOG_1401"

	// Watcher errors (1500-1599)
	ErrCodeWatcherFailure = "WATCHER_1501"

	// Configuration errors (1600-1699)
	ErrCodeConfigError = "CONFIG_1601"
)

// Directory error constructors

func NewDirectoryUnavailableError(directory string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeDirectoryUnavailable, "Extension directory unavailable").
			WithUserMessage("The extension directory does not exist and could not be created").
			WithContext("directory", directory).
			WithSeverity("error")
	}
	return errors.New(ErrCodeDirectoryUnavailable, "Extension directory unavailable").
		WithUserMessage("The extension directory does not exist and could not be created").
		WithContext("directory", directory).
		WithSeverity("error")
}

// Load error constructors

func NewLoadFailureError(file string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeLoadFailure, "Module load failed").
			WithUserMessage("The module binary could not be loaded and was skipped").
			WithContext("file", file).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeLoadFailure, "Module load failed").
		WithUserMessage("The module binary could not be loaded and was skipped").
		WithContext("file", file).
		WithSeverity("warning")
}

func NewNoImplementationError(file string) *errors.Error {
	return errors.New(ErrCodeNoImplementation, "No implementation found").
		WithUserMessage("The module exports no entry point satisfying the extension contract").
		WithContext("file", file).
		WithContext("symbols", SymbolNewExtension+", "+SymbolExtension).
		WithSeverity("warning")
}

func NewUnsupportedPlatformError() *errors.Error {
	return errors.New(ErrCodeUnsupportedPlatform, "In-process loading unsupported").
		WithUserMessage("The platform binary loader is not available on this operating system").
		WithSeverity("error")
}

func NewReleaseFailureError(index int, reason string) *errors.Error {
	return errors.New(ErrCodeReleaseFailure, "Module release failed").
		WithUserMessage("The loaded module entry could not be released").
		WithContext("arena_index", index).
		WithContext("reason", reason).
		WithSeverity("error")
}

// Dependency resolution error constructors

func NewDependencyUnresolvedError(dependency, file string) *errors.Error {
	return errors.New(ErrCodeDependencyUnresolved, "Dependency unresolved").
		WithUserMessage("A dependency requested during load could not be resolved").
		WithContext("dependency", dependency).
		WithContext("file", file).
		WithSeverity("warning")
}

func NewResourceExtractionError(resource string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeResourceExtraction, "Resource extraction failed").
		WithUserMessage("An embedded resource could not be extracted").
		WithContext("resource", resource).
		WithSeverity("warning")
}

// Registry error constructors

func NewInitializationFailureError(name, file string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInitializationFailure, "Extension initialization failed").
		WithUserMessage("The extension loaded but failed to initialize and was discarded").
		WithContext("extension", name).
		WithContext("file", file).
		WithSeverity("warning")
}

func NewUIRegistrationError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeUIRegistration, "UI registration failed").
		WithUserMessage("The extension initialized but could not register its UI contribution").
		WithContext("extension", name).
		WithSeverity("warning")
}

// Catalog error constructors

func NewDuplicateIdentityError(id, keptFile, droppedFile string) *errors.Error {
	return errors.New(ErrCodeDuplicateIdentity, "Duplicate relay identity").
		WithUserMessage("Two relay modules declared the same id; the lexicographically first file wins").
		WithContext("id", id).
		WithContext("kept_file", keptFile).
		WithContext("dropped_file", droppedFile).
		WithSeverity("warning")
}

// Watcher error constructors

func NewWatcherFailureError(directory string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeWatcherFailure, "Directory watcher failure").
			WithUserMessage("The directory watcher failed and will be restarted").
			WithContext("directory", directory).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeWatcherFailure, "Directory watcher failure").
		WithUserMessage("The directory watcher failed and will be restarted").
		WithContext("directory", directory).
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigError(path, message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigError, message).
			WithContext("path", path).
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigError, message).
		WithContext("path", path).
		WithSeverity("error")
}

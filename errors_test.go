// errors_test.go: test coverage for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
)

// TestDirectoryErrorConstructors tests directory and scanning error constructors
func TestDirectoryErrorConstructors(t *testing.T) {
	t.Run("NewDirectoryUnavailableError_WithCause", func(t *testing.T) {
		cause := fmt.Errorf("permission denied")
		err := NewDirectoryUnavailableError("/var/lib/extensions", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeDirectoryUnavailable) {
			t.Errorf("Expected error code %s, got %s", ErrCodeDirectoryUnavailable, err.ErrorCode())
		}
		if err.Context["directory"] != "/var/lib/extensions" {
			t.Errorf("Expected directory context, got %v", err.Context["directory"])
		}
	})

	t.Run("NewDirectoryUnavailableError_WithoutCause", func(t *testing.T) {
		err := NewDirectoryUnavailableError("/var/lib/extensions", nil)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeDirectoryUnavailable) {
			t.Errorf("Expected error code %s, got %s", ErrCodeDirectoryUnavailable, err.ErrorCode())
		}
	})
}

// TestLoadErrorConstructors tests module loading error constructors
func TestLoadErrorConstructors(t *testing.T) {
	t.Run("NewLoadFailureError", func(t *testing.T) {
		cause := fmt.Errorf("corrupt image")
		err := NewLoadFailureError("Monitor.so", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeLoadFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeLoadFailure, err.ErrorCode())
		}
		if err.Context["file"] != "Monitor.so" {
			t.Errorf("Expected file context 'Monitor.so', got %v", err.Context["file"])
		}
	})

	t.Run("NewNoImplementationError", func(t *testing.T) {
		err := NewNoImplementationError("Monitor.so")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeNoImplementation) {
			t.Errorf("Expected error code %s, got %s", ErrCodeNoImplementation, err.ErrorCode())
		}
		if err.Context["symbols"] != SymbolNewExtension+", "+SymbolExtension {
			t.Errorf("Expected symbols context, got %v", err.Context["symbols"])
		}
	})

	t.Run("NewUnsupportedPlatformError", func(t *testing.T) {
		err := NewUnsupportedPlatformError()

		if err.ErrorCode() != errors.ErrorCode(ErrCodeUnsupportedPlatform) {
			t.Errorf("Expected error code %s, got %s", ErrCodeUnsupportedPlatform, err.ErrorCode())
		}
	})

	t.Run("NewReleaseFailureError", func(t *testing.T) {
		err := NewReleaseFailureError(7, "already released")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeReleaseFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeReleaseFailure, err.ErrorCode())
		}
		if err.Context["arena_index"] != 7 {
			t.Errorf("Expected arena_index 7, got %v", err.Context["arena_index"])
		}
		if err.Context["reason"] != "already released" {
			t.Errorf("Expected reason context, got %v", err.Context["reason"])
		}
	})
}

// TestDependencyErrorConstructors tests dependency resolution error constructors
func TestDependencyErrorConstructors(t *testing.T) {
	t.Run("NewDependencyUnresolvedError", func(t *testing.T) {
		err := NewDependencyUnresolvedError("libmetrics.so", "Monitor.so")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeDependencyUnresolved) {
			t.Errorf("Expected error code %s, got %s", ErrCodeDependencyUnresolved, err.ErrorCode())
		}
		if err.Context["dependency"] != "libmetrics.so" {
			t.Errorf("Expected dependency context, got %v", err.Context["dependency"])
		}
		if err.Context["file"] != "Monitor.so" {
			t.Errorf("Expected file context, got %v", err.Context["file"])
		}
	})

	t.Run("NewResourceExtractionError", func(t *testing.T) {
		cause := fmt.Errorf("truncated entry")
		err := NewResourceExtractionError("Resources/libmetrics.so.gz", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeResourceExtraction) {
			t.Errorf("Expected error code %s, got %s", ErrCodeResourceExtraction, err.ErrorCode())
		}
		if err.Context["resource"] != "Resources/libmetrics.so.gz" {
			t.Errorf("Expected resource context, got %v", err.Context["resource"])
		}
	})
}

// TestRegistryErrorConstructors tests registry error constructors
func TestRegistryErrorConstructors(t *testing.T) {
	t.Run("NewInitializationFailureError", func(t *testing.T) {
		cause := fmt.Errorf("missing credentials")
		err := NewInitializationFailureError("monitor", "Monitor.so", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeInitializationFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeInitializationFailure, err.ErrorCode())
		}
		if err.Context["extension"] != "monitor" {
			t.Errorf("Expected extension context, got %v", err.Context["extension"])
		}
		if err.Context["file"] != "Monitor.so" {
			t.Errorf("Expected file context, got %v", err.Context["file"])
		}
	})

	t.Run("NewUIRegistrationError", func(t *testing.T) {
		cause := fmt.Errorf("duplicate panel")
		err := NewUIRegistrationError("monitor", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeUIRegistration) {
			t.Errorf("Expected error code %s, got %s", ErrCodeUIRegistration, err.ErrorCode())
		}
	})
}

// TestCatalogErrorConstructors tests relay catalog error constructors
func TestCatalogErrorConstructors(t *testing.T) {
	t.Run("NewDuplicateIdentityError", func(t *testing.T) {
		err := NewDuplicateIdentityError("bridge", "Aardvark.Relay.so", "Zebra.Relay.so")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeDuplicateIdentity) {
			t.Errorf("Expected error code %s, got %s", ErrCodeDuplicateIdentity, err.ErrorCode())
		}
		if err.Context["kept_file"] != "Aardvark.Relay.so" {
			t.Errorf("Expected kept_file context, got %v", err.Context["kept_file"])
		}
		if err.Context["dropped_file"] != "Zebra.Relay.so" {
			t.Errorf("Expected dropped_file context, got %v", err.Context["dropped_file"])
		}
	})
}

// TestWatcherErrorConstructors tests watcher error constructors
func TestWatcherErrorConstructors(t *testing.T) {
	t.Run("NewWatcherFailureError_WithCause", func(t *testing.T) {
		cause := fmt.Errorf("inotify limit reached")
		err := NewWatcherFailureError("/var/lib/extensions", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeWatcherFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeWatcherFailure, err.ErrorCode())
		}
		if err.Context["directory"] != "/var/lib/extensions" {
			t.Errorf("Expected directory context, got %v", err.Context["directory"])
		}
	})

	t.Run("NewWatcherFailureError_WithoutCause", func(t *testing.T) {
		err := NewWatcherFailureError("/var/lib/extensions", nil)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeWatcherFailure) {
			t.Errorf("Expected error code %s, got %s", ErrCodeWatcherFailure, err.ErrorCode())
		}
	})
}

// TestConfigErrorConstructors tests configuration error constructors
func TestConfigErrorConstructors(t *testing.T) {
	t.Run("NewConfigError_WithCause", func(t *testing.T) {
		cause := fmt.Errorf("yaml: line 3")
		err := NewConfigError("/etc/ext/options.yaml", "Cannot parse options file", cause)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeConfigError) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigError, err.ErrorCode())
		}
		if err.Context["path"] != "/etc/ext/options.yaml" {
			t.Errorf("Expected path context, got %v", err.Context["path"])
		}
	})

	t.Run("NewConfigError_WithoutCause", func(t *testing.T) {
		err := NewConfigError("", "Extension directory is required", nil)

		if err.ErrorCode() != errors.ErrorCode(ErrCodeConfigError) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigError, err.ErrorCode())
		}
	})
}

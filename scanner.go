// scanner.go: Extension directory enumeration and naming-convention filters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultModuleExtension is the module file extension assumed when the
// naming convention does not specify one.
const DefaultModuleExtension = ".so"

const (
	disabledSuffix = ".disabled"
	relayMarker    = ".relay"
	initExtension  = ".init"
	manifestSuffix = ".manifest.yaml"
)

// NamingConvention partitions a directory's entries into module classes by
// file name suffix, case-insensitively:
//
//	*.relay<ext>           relay-class module, excluded from host loading
//	*<ext>                 host-class module
//	*<ext>.disabled        excluded from both classes entirely
//	<base>.init            sidecar carrying a relay module's init payload
//	<base>.manifest.yaml   sidecar declaring identity and dependencies
//
// The module extension is configurable; everything else is fixed.
type NamingConvention struct {
	// ModuleExt is the module file extension including the leading dot.
	// Empty means DefaultModuleExtension.
	ModuleExt string
}

func (n NamingConvention) ext() string {
	if n.ModuleExt == "" {
		return DefaultModuleExtension
	}
	return n.ModuleExt
}

// Classify returns the class of a file name and whether it is a module file
// at all. Sidecars and unrelated files report false.
func (n NamingConvention) Classify(name string) (ModuleClass, bool) {
	lower := strings.ToLower(name)
	ext := strings.ToLower(n.ext())
	switch {
	case strings.HasSuffix(lower, ext+disabledSuffix):
		return ClassDisabled, true
	case strings.HasSuffix(lower, relayMarker+ext):
		return ClassRelay, true
	case strings.HasSuffix(lower, ext):
		return ClassHost, true
	}
	return ClassDisabled, false
}

// BaseName strips the disabled suffix, module extension, and relay marker
// from a module file name. Sidecars are named for this base: the init
// payload of "Monitor.Relay.so" is "Monitor.init".
func (n NamingConvention) BaseName(name string) string {
	base, _ := trimSuffixFold(name, disabledSuffix)
	base, _ = trimSuffixFold(base, n.ext())
	base, _ = trimSuffixFold(base, relayMarker)
	return base
}

// InitSidecar returns the init sidecar file name for a module file.
func (n NamingConvention) InitSidecar(name string) string {
	return n.BaseName(name) + initExtension
}

// ManifestSidecar returns the manifest sidecar file name for a module file.
func (n NamingConvention) ManifestSidecar(name string) string {
	return n.BaseName(name) + manifestSuffix
}

// trimSuffixFold removes suffix from s case-insensitively, preserving the
// original case of the remainder.
func trimSuffixFold(s, suffix string) (string, bool) {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

// DirectoryScanner enumerates candidate module files in the watched
// directory. Scanning is non-recursive, filters disabled-marked files, and
// orders results by file name ascending so that every downstream decision
// (duplicate resolution in particular) is deterministic.
type DirectoryScanner struct {
	convention NamingConvention
	logger     Logger
}

// NewDirectoryScanner creates a scanner for the given naming convention.
func NewDirectoryScanner(convention NamingConvention, logger any) *DirectoryScanner {
	return &DirectoryScanner{
		convention: convention,
		logger:     NewLogger(logger),
	}
}

// Convention returns the naming convention the scanner applies.
func (s *DirectoryScanner) Convention() NamingConvention {
	return s.convention
}

// Scan enumerates the directory and returns the host- and relay-class
// module files in ascending file name order.
//
// A missing directory is created on demand; only failure to create it is an
// error (DirectoryUnavailable). Individual unreadable entries are skipped
// with a warning, never fatal.
func (s *DirectoryScanner) Scan(directory string) ([]ModuleFile, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, NewDirectoryUnavailableError(directory, err)
		}
		if mkErr := os.MkdirAll(directory, 0o755); mkErr != nil {
			return nil, NewDirectoryUnavailableError(directory, mkErr)
		}
		s.logger.Info("Created missing extension directory", "directory", directory)
		return []ModuleFile{}, nil
	}

	files := make([]ModuleFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		class, isModule := s.convention.Classify(name)
		if !isModule {
			continue
		}
		if class == ClassDisabled {
			s.logger.Debug("Skipping disabled module", "file", name)
			continue
		}
		if _, infoErr := entry.Info(); infoErr != nil {
			s.logger.Warn("Skipping unreadable directory entry",
				"file", name, "error", infoErr)
			continue
		}
		files = append(files, ModuleFile{
			Name:  name,
			Path:  filepath.Join(directory, name),
			Class: class,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// readSidecar returns the verbatim bytes of a sidecar next to a module file,
// or nil when the sidecar does not exist.
func readSidecar(modulePath, sidecarName string) ([]byte, error) {
	path := filepath.Join(filepath.Dir(modulePath), sidecarName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

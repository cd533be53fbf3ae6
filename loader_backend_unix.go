//go:build linux || darwin || freebsd

// loader_backend_unix.go: stdlib plugin backend for Unix-like systems
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"os"
	"path/filepath"
	"plugin"
	"regexp"
)

// missingSharedObjectRE extracts the dependency name from the dynamic
// loader's "cannot open shared object file" diagnostic.
var missingSharedObjectRE = regexp.MustCompile(`([^\s:/]+): cannot open shared object file`)

// maxDependencyRetries bounds how many distinct missing dependencies one
// open attempt will resolve before giving up.
const maxDependencyRetries = 8

// platformBackend loads binaries through the stdlib plugin package.
type platformBackend struct{}

// NewPlatformBackend returns the binary backend for this platform.
func NewPlatformBackend() BinaryBackend {
	return platformBackend{}
}

// Open opens the binary, resolving missing shared objects through resolve
// and retrying. Each resolved dependency is written next to the binary,
// inside the per-attempt staging directory.
func (platformBackend) Open(path string, resolve ResolveFunc) (BinaryModule, error) {
	seen := make(map[string]bool)
	for range maxDependencyRetries {
		p, err := plugin.Open(path)
		if err == nil {
			return platformModule{p: p}, nil
		}

		match := missingSharedObjectRE.FindStringSubmatch(err.Error())
		if resolve == nil || match == nil || seen[match[1]] {
			return nil, err
		}
		name := match[1]
		seen[name] = true

		data, resolveErr := resolve(name)
		if resolveErr != nil {
			return nil, resolveErr
		}
		staged := filepath.Join(filepath.Dir(path), name)
		if writeErr := os.WriteFile(staged, data, 0o755); writeErr != nil {
			return nil, writeErr
		}
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return platformModule{p: p}, nil
}

type platformModule struct {
	p *plugin.Plugin
}

func (m platformModule) Lookup(symbol string) (any, error) {
	sym, err := m.p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

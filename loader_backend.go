// loader_backend.go: Platform binary loader abstraction
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

// ResolveFunc supplies the bytes for a dependency name requested while a
// binary is being opened. It is scoped to one load attempt; backends must
// not retain it past the Open call.
type ResolveFunc func(name string) ([]byte, error)

// BinaryBackend opens a staged module binary and exposes its exported
// symbols. The production backend wraps the platform loader (package
// plugin); tests substitute a fake.
type BinaryBackend interface {
	// Open loads the binary at path. When the platform loader reports a
	// missing dependency, the backend may consult resolve and retry;
	// resolved dependencies are materialized next to the binary so the
	// platform loader finds them.
	Open(path string, resolve ResolveFunc) (BinaryModule, error)
}

// BinaryModule is one opened binary.
type BinaryModule interface {
	// Lookup returns an exported symbol by name.
	Lookup(symbol string) (any, error)
}

//go:build windows

// loader_backend_windows.go: Windows stub for the binary loader backend
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

// NewPlatformBackend returns the binary backend for this platform. The Go
// runtime has no in-process loader on Windows, so every open fails with a
// coded error; the surrounding pass skips the module and continues.
func NewPlatformBackend() BinaryBackend {
	return unsupportedBackend{}
}

type unsupportedBackend struct{}

func (unsupportedBackend) Open(path string, resolve ResolveFunc) (BinaryModule, error) {
	return nil, NewUnsupportedPlatformError()
}

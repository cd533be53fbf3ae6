// extension.go: Capability contracts for host and relay extension modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
)

// Well-known exported symbols a host-class module must provide. The loader
// looks them up in order: a factory first, then a plain value.
const (
	// SymbolNewExtension is the preferred entry point: an exported
	// function of type func() HostExtension.
	SymbolNewExtension = "NewExtension"

	// SymbolExtension is the fallback entry point: an exported variable
	// holding a HostExtension value (or a pointer to one).
	SymbolExtension = "Extension"
)

// ExtensionInfo carries the identity a host extension declares for itself.
//
// The declared name and version are informational; reconciliation identity
// is always the origin file name (see HostRegistry).
type ExtensionInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// HostExtension is the capability contract every host-class module must
// satisfy. Loading a module means obtaining a value implementing this
// interface from the module's entry point symbol; there is no metadata
// scanning involved.
//
// Implementations may additionally satisfy:
//   - UIExtension to attach to the host UI after initialization
//   - io.Closer to be disposed when their source file disappears
//   - ResourceProvider to hand embedded resources to the dependency resolver
type HostExtension interface {
	// Info returns the extension's declared identity.
	Info() ExtensionInfo

	// Initialize prepares the extension against the host context. It is
	// called exactly once, after loading and before UI registration. An
	// error discards the instance without registering it.
	Initialize(ctx context.Context, host HostContext) error
}

// UIExtension is implemented by host extensions that contribute to the host
// UI. The registry registers UI-capable instances with the UI registry
// immediately after successful initialization and revokes the registration
// before disposal when the extension is removed.
type UIExtension interface {
	HostExtension

	// UIInfo describes the extension's UI contribution.
	UIInfo() UIExtensionInfo
}

// UIExtensionInfo describes where and how a UI extension surfaces in the
// host UI. Interpretation is up to the embedding application.
type UIExtensionInfo struct {
	Title     string `json:"title"`
	Placement string `json:"placement,omitempty"`
}

// UIRegistry is the host-side surface UI-capable extensions register with.
// The concrete implementation is supplied by the embedding application.
type UIRegistry interface {
	// RegisterUIExtension makes an extension's UI contribution visible.
	RegisterUIExtension(name string, ext UIExtension) error

	// UnregisterUIExtension revokes a previous registration. Unknown
	// names are ignored.
	UnregisterUIExtension(name string) error
}

// ResourceProvider exposes a module's embedded resources to the dependency
// resolver. Names are matched case-insensitively after normalization of
// container and compression markers.
type ResourceProvider interface {
	// ResourceNames lists the embedded resource names.
	ResourceNames() []string

	// ExtractResource returns the raw (possibly compressed) bytes of an
	// embedded resource.
	ExtractResource(name string) ([]byte, error)
}

// HostContext is the opaque handle through which extensions reach host
// capabilities. The embedding application decides what it exposes.
type HostContext interface {
	// Logger returns the host logger scoped for extension use.
	Logger() Logger

	// Value returns a host-scoped value by key, or nil.
	Value(key string) any
}

// hostContext is the default HostContext implementation.
type hostContext struct {
	logger Logger
	values map[string]any
}

// NewHostContext builds a HostContext from a logger and an optional set of
// host-scoped values. The values map is copied.
func NewHostContext(logger any, values map[string]any) HostContext {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &hostContext{
		logger: NewLogger(logger),
		values: copied,
	}
}

func (h *hostContext) Logger() Logger { return h.logger }

func (h *hostContext) Value(key string) any { return h.values[key] }

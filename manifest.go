// manifest.go: Optional module manifest sidecar
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleManifest is the optional YAML sidecar (<base>.manifest.yaml) through
// which a module declares identity and dependencies without being executed.
//
// Relay-class modules are never loaded in-process, so their descriptor
// identity comes entirely from the manifest; absent one, the id and type
// name fall back to the file base name and the version defaults to "1.0.0".
// Host-class modules use the manifest only for dependency declarations; the
// binaries named there are resolved into the staging directory before the
// platform loader opens the module.
//
// Example:
//
//	name: monitor
//	version: 2.1.0
//	type_name: Acme.Monitor.Extension
//	dependencies:
//	  - libmetrics.so
type ModuleManifest struct {
	Name         string   `yaml:"name" json:"name"`
	Version      string   `yaml:"version" json:"version"`
	TypeName     string   `yaml:"type_name" json:"type_name"`
	Dependencies []string `yaml:"dependencies" json:"dependencies"`
}

// defaultModuleVersion is assumed when a module declares no version.
const defaultModuleVersion = "1.0.0"

// loadModuleManifest reads and parses the manifest sidecar for a module
// file. It returns nil without error when no sidecar exists; a sidecar that
// exists but does not parse is an error (the caller decides whether that
// fails the module or falls back).
func loadModuleManifest(file ModuleFile, convention NamingConvention) (*ModuleManifest, error) {
	data, err := readSidecar(file.Path, convention.ManifestSidecar(file.Name))
	if err != nil {
		return nil, NewLoadFailureError(file.Name, err)
	}
	if data == nil {
		return nil, nil
	}

	var manifest ModuleManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, NewLoadFailureError(file.Name, err)
	}
	manifest.normalize(file, convention)
	return &manifest, nil
}

// normalize fills defaulted fields from the file name.
func (m *ModuleManifest) normalize(file ModuleFile, convention NamingConvention) {
	if strings.TrimSpace(m.Name) == "" {
		m.Name = convention.BaseName(file.Name)
	}
	if strings.TrimSpace(m.Version) == "" {
		m.Version = defaultModuleVersion
	}
	if strings.TrimSpace(m.TypeName) == "" {
		m.TypeName = m.Name
	}
}

// manifestOrDefaults returns the manifest for a module, synthesizing one
// from the file name when no sidecar exists.
func manifestOrDefaults(file ModuleFile, convention NamingConvention) (*ModuleManifest, error) {
	manifest, err := loadModuleManifest(file, convention)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		manifest = &ModuleManifest{}
		manifest.normalize(file, convention)
	}
	return manifest, nil
}

// resolver.go: Tiered dependency resolution for module loads
//
// A module loaded from the extension directory may reference binaries that
// are not on the platform loader's search path. Resolution is tiered: the
// module's own embedded resources first (modules typically bundle
// dependencies, often compressed), then a fixed side directory next to the
// host executable for dependencies kept external deliberately. Resolution is
// strictly per load attempt; there is no process-wide hook, so concurrent
// loads can never resolve each other's dependencies.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// compressionSuffixes are the markers stripped when normalizing resource
// names for matching. The payload itself is sniffed for the gzip magic, so
// matching and decompression stay independent.
var compressionSuffixes = []string{".gz", ".compressed"}

// DependencyResolver resolves dependency names requested during one module
// load. It is owned by the load session that created it and is discarded
// with the session on every exit path.
type DependencyResolver struct {
	moduleName string
	resources  ResourceProvider // embedded resources, nil when the module has none
	sideDir    string
	logger     Logger
}

func newDependencyResolver(moduleName string, resources ResourceProvider, sideDir string, logger Logger) *DependencyResolver {
	return &DependencyResolver{
		moduleName: moduleName,
		resources:  resources,
		sideDir:    sideDir,
		logger:     logger,
	}
}

// Resolve returns the bytes for a dependency name, trying the module's
// embedded resources first and the side directory second. Failure is a
// coded DependencyUnresolved error, which fails the load that needed it
// (and only that load).
func (r *DependencyResolver) Resolve(name string) ([]byte, error) {
	if data, ok, err := r.resolveEmbedded(name); err != nil {
		return nil, err
	} else if ok {
		r.logger.Debug("Dependency resolved from embedded resources",
			"module", r.moduleName, "dependency", name)
		return data, nil
	}

	if data, ok := r.resolveSideDirectory(name); ok {
		r.logger.Debug("Dependency resolved from side directory",
			"module", r.moduleName, "dependency", name, "side_dir", r.sideDir)
		return data, nil
	}

	r.logger.Warn("Dependency unresolved",
		"module", r.moduleName, "dependency", name)
	return nil, NewDependencyUnresolvedError(name, r.moduleName)
}

// resolveEmbedded searches the module's embedded resources for a name match
// after normalizing container and compression markers, case-insensitively.
func (r *DependencyResolver) resolveEmbedded(name string) ([]byte, bool, error) {
	if r.resources == nil {
		return nil, false, nil
	}
	want := normalizeResourceName(name)
	for _, resource := range r.resources.ResourceNames() {
		if normalizeResourceName(resource) != want {
			continue
		}
		raw, err := r.resources.ExtractResource(resource)
		if err != nil {
			return nil, false, NewResourceExtractionError(resource, err)
		}
		data, err := maybeDecompress(raw)
		if err != nil {
			return nil, false, NewResourceExtractionError(resource, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// resolveSideDirectory looks for a same-named file in the side directory,
// creating the directory on demand.
func (r *DependencyResolver) resolveSideDirectory(name string) ([]byte, bool) {
	if r.sideDir == "" {
		return nil, false
	}
	if err := os.MkdirAll(r.sideDir, 0o755); err != nil {
		r.logger.Warn("Cannot create dependency side directory",
			"side_dir", r.sideDir, "error", err)
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(r.sideDir, filepath.Base(name)))
	if err != nil {
		return nil, false
	}
	return data, true
}

// normalizeResourceName lowercases a resource name and strips directory
// prefixes and compression suffixes so "Resources/LibMetrics.so.gz" matches
// a request for "libmetrics.so".
func normalizeResourceName(name string) string {
	normalized := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range compressionSuffixes {
			if strings.HasSuffix(normalized, suffix) {
				normalized = strings.TrimSuffix(normalized, suffix)
				stripped = true
			}
		}
	}
	return normalized
}

// maybeDecompress gunzips data when it carries the gzip magic, and returns
// it unchanged otherwise.
func maybeDecompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

// moduleContainer is the embedded-resource view over a module packaged as a
// zip container: one primary binary entry plus bundled dependency resources.
// It satisfies ResourceProvider so the resolver treats bundled and
// module-declared resources uniformly.
type moduleContainer struct {
	primary   *zip.File
	resources []*zip.File
}

// zip local file header magic
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// openModuleContainer interprets an in-memory module image as a container.
// The second return is false when the image is a plain binary.
func openModuleContainer(image []byte, convention NamingConvention) (*moduleContainer, bool) {
	if !bytes.HasPrefix(image, zipMagic) {
		return nil, false
	}
	zr, err := zip.NewReader(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		return nil, false
	}

	// The primary binary is the first root-level entry with the module
	// extension; bundled dependencies live under subdirectories and often
	// share the extension.
	ext := strings.ToLower(convention.ext())
	var primary *zip.File
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ext) && !strings.ContainsAny(f.Name, `/\`) {
			primary = f
			break
		}
	}
	if primary == nil {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ext) {
				primary = f
				break
			}
		}
	}
	if primary == nil {
		return nil, false
	}

	container := &moduleContainer{primary: primary}
	for _, f := range zr.File {
		if f == primary {
			continue
		}
		container.resources = append(container.resources, f)
	}
	return container, true
}

// primaryName returns the file name of the primary binary entry.
func (c *moduleContainer) primaryName() string {
	return path.Base(c.primary.Name)
}

// primaryBytes extracts the primary binary entry.
func (c *moduleContainer) primaryBytes() ([]byte, error) {
	return readZipEntry(c.primary)
}

// ResourceNames implements ResourceProvider.
func (c *moduleContainer) ResourceNames() []string {
	names := make([]string, 0, len(c.resources))
	for _, f := range c.resources {
		names = append(names, f.Name)
	}
	return names
}

// ExtractResource implements ResourceProvider. The bytes are returned raw;
// decompression is the resolver's concern.
func (c *moduleContainer) ExtractResource(name string) ([]byte, error) {
	for _, f := range c.resources {
		if f.Name == name {
			return readZipEntry(f)
		}
	}
	return nil, NewResourceExtractionError(name, os.ErrNotExist)
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

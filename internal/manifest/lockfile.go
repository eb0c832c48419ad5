// Package manifest loads and validates the locked dependency manifest.
//
// The lockfile pins every dependency to an exact version and checksum,
// eliminating version-resolution nondeterminism at build time. It is a
// read-only input: the pipeline never mutates it, and it is addressed
// separately from the source snapshot because it enters the build as its
// own typed input rather than as generic source.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/binforge/internal/model"
	"github.com/shinji-kodama/binforge/internal/snapshot"
)

// FormatVersion is the lockfile schema version this package reads.
const FormatVersion = 1

// Pin is a single fully resolved dependency entry.
type Pin struct {
	// Version is the exact resolved version (e.g., "1.4.2").
	Version string `yaml:"version"`

	// Checksum is the content checksum of the resolved dependency,
	// as recorded by the dependency resolver that wrote the lockfile.
	Checksum string `yaml:"checksum"`
}

// Lockfile is the parsed locked dependency manifest.
type Lockfile struct {
	// Version is the lockfile format version. Only FormatVersion is
	// accepted; a mismatch means the file was written by an incompatible
	// resolver.
	Version int `yaml:"version"`

	// Packages maps dependency names to their pinned entries.
	Packages map[string]Pin `yaml:"packages"`

	// Path is the file the lockfile was loaded from. Not serialized.
	Path string `yaml:"-"`

	// Address is the manifest-domain content address of the raw file
	// bytes. Part of the build cache key. Not serialized.
	Address snapshot.Address `yaml:"-"`
}

// Load reads and validates a lockfile. The returned Lockfile carries the
// content address of the raw bytes, so byte-identical lockfiles always
// produce the same address regardless of YAML formatting concerns.
//
// A missing, unparsable, or invalid lockfile returns a CLIError with
// ExitConfigInvalid — the build cannot proceed without pinned inputs.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("cannot read lockfile %q", path), err)
	}

	var lock Lockfile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("lockfile %q is not valid YAML", path), err)
	}

	lock.Path = path
	lock.Address = snapshot.HashManifest(data)

	if err := lock.validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("lockfile %q failed validation", path), err)
	}
	return &lock, nil
}

// validate enforces the determinism contract: every entry must be fully
// pinned. An entry missing its version or checksum would reintroduce
// resolution nondeterminism into the build.
func (l *Lockfile) validate() error {
	if l.Version != FormatVersion {
		return fmt.Errorf("unsupported lockfile format version %d (want %d)", l.Version, FormatVersion)
	}
	for _, name := range l.PackageNames() {
		pin := l.Packages[name]
		if pin.Version == "" {
			return fmt.Errorf("package %q has no pinned version", name)
		}
		if pin.Checksum == "" {
			return fmt.Errorf("package %q has no checksum", name)
		}
	}
	return nil
}

// PackageNames returns the pinned dependency names in sorted order.
// Map iteration order is randomized in Go, so every consumer that walks
// the package set goes through this accessor to stay deterministic.
func (l *Lockfile) PackageNames() []string {
	names := make([]string, 0, len(l.Packages))
	for name := range l.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

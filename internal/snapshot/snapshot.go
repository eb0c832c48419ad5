// Package snapshot implements the source snapshot filter: it captures the
// buildable file set beneath a root directory and computes its content
// address.
//
// The filter exists so that files describing the build system itself (the
// pipeline config, the lockfile, previous output directories) never enter
// the hashed source set — editing them must not invalidate the build's
// content address. Entries are sorted by path before addressing, so the
// address is independent of filesystem iteration order.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Entry is a single file in a snapshot: its slash-separated path relative
// to the snapshot root and the content address of its bytes.
type Entry struct {
	// Path is the relative path, always using forward slashes so the
	// canonical encoding is identical across platforms.
	Path string

	// Address is the file-domain content address of the file's bytes.
	Address Address
}

// Snapshot is an immutable, ordered capture of the buildable source set at
// a point in time. It is created fresh per build invocation; nothing
// mutates it after Capture returns.
type Snapshot struct {
	// Root is the absolute path the snapshot was captured from.
	Root string

	// Entries lists every included file, sorted by Path.
	Entries []Entry

	// Address is the tree-domain content address over the canonical
	// encoding of Entries. Identical file sets always yield the identical
	// address regardless of capture order.
	Address Address
}

// ExcludeFunc decides whether a base name is excluded from the snapshot.
// When it matches a directory name, the whole subtree is skipped.
type ExcludeFunc func(base string) bool

// ExcludeBaseNames returns an ExcludeFunc matching any of the given base
// names exactly. This is the predicate form of the configurable exclusion
// set: pipeline config file, lockfile, output directories, and the VCS
// metadata directory.
func ExcludeBaseNames(names []string) ExcludeFunc {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(base string) bool {
		return set[base]
	}
}

// Capture walks root and produces a Snapshot of every regular file whose
// base name (and none of whose ancestor directory names) is matched by
// exclude. Entries are sorted by path and the snapshot address is computed
// over their canonical encoding.
//
// An unreadable or missing root is fatal to the invoking build: Capture
// returns a CLIError with ExitSnapshotError and no partial snapshot.
func Capture(root string, exclude ExcludeFunc) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitSnapshotError,
			fmt.Sprintf("cannot resolve snapshot root %q", root), err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitSnapshotError,
			fmt.Sprintf("snapshot root %q is not readable", absRoot), err)
	}
	if !info.IsDir() {
		return nil, model.NewCLIError(model.ExitSnapshotError,
			fmt.Sprintf("snapshot root %q is not a directory", absRoot))
	}

	var entries []Entry
	walkErr := filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		base := d.Name()
		if path != absRoot && exclude != nil && exclude(base) {
			if d.IsDir() {
				// Excluding a directory prunes its entire subtree,
				// e.g. prior build output under out/.
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			// Sockets, device nodes, and symlinks are not buildable
			// source; a symlinked file's target is captured when the
			// walk reaches it by its real path.
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return relErr
		}

		entries = append(entries, Entry{
			Path:    filepath.ToSlash(rel),
			Address: HashFileContent(data),
		})
		return nil
	})
	if walkErr != nil {
		return nil, model.WrapCLIError(model.ExitSnapshotError,
			fmt.Sprintf("failed to capture snapshot of %q", absRoot), walkErr)
	}

	// WalkDir visits entries in lexical order per directory, but the
	// address must not depend on any iteration guarantee, so the entries
	// are sorted explicitly before encoding.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return &Snapshot{
		Root:    absRoot,
		Entries: entries,
		Address: keyedHash(treeDomainKey, canonicalEncoding(entries)),
	}, nil
}

// canonicalEncoding serializes sorted entries into the byte stream that is
// hashed for the snapshot address. Each entry contributes its path, a NUL
// separator (which cannot appear in a path), the hex file address, and a
// newline. The encoding is stable across platforms and releases; changing
// it invalidates every existing snapshot address.
func canonicalEncoding(entries []Entry) []byte {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Path)
		sb.WriteByte(0)
		sb.WriteString(e.Address.String())
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Len returns the number of files in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

package image

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
)

// layerEpoch is the fixed modification time stamped on every tar entry.
// Pinning timestamps (and uid/gid) is what makes layer digests a pure
// function of file content, so assembling the same inputs twice yields
// byte-identical layers.
var layerEpoch = time.Unix(0, 0)

// layer is one assembled image layer: the gzip-compressed blob plus the
// two digests the OCI config and manifest need. DiffID covers the
// uncompressed tar (referenced from the image config's rootfs), Digest
// covers the compressed blob (referenced from the manifest).
type layer struct {
	blob   []byte
	digest string
	diffID string
}

// newLayer compresses a tar stream and computes both digests.
func newLayer(tarBytes []byte) (*layer, error) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(tarBytes); err != nil {
		return nil, fmt.Errorf("compressing layer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing layer compression: %w", err)
	}

	return &layer{
		blob:   compressed.Bytes(),
		digest: sha256Digest(compressed.Bytes()),
		diffID: sha256Digest(tarBytes),
	}, nil
}

// sha256Digest returns the OCI digest string "sha256:<hex>" for data.
// The OCI image spec fixes SHA-256 as the digest algorithm for blobs.
func sha256Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// tarDirectory builds a tar stream from the contents of dir, rooted at
// the image filesystem root. Directories, regular files, and symlinks are
// included; entries are sorted by path so the stream is independent of
// filesystem iteration order. Symlinks matter here because minimal base
// sets link most utility names to a single multi-call binary.
func tarDirectory(dir string) ([]byte, error) {
	type entry struct {
		rel  string
		path string
		info fs.FileInfo
	}

	var entries []entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), path: path, info: info})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].rel < entries[j].rel
	})

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		switch {
		case e.info.IsDir():
			if err := writeDirHeader(tw, e.rel); err != nil {
				return nil, err
			}
		case e.info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(e.path)
			if err != nil {
				return nil, err
			}
			hdr := &tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     e.rel,
				Linkname: target,
				Mode:     0o777,
				ModTime:  layerEpoch,
				Format:   tar.FormatPAX,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
		case e.info.Mode().IsRegular():
			data, err := os.ReadFile(e.path)
			if err != nil {
				return nil, err
			}
			// Preserve only the execute bit distinction; everything else
			// is normalized so host umask differences cannot change the
			// layer digest.
			mode := int64(0o644)
			if e.info.Mode()&0o100 != 0 {
				mode = 0o755
			}
			if err := writeFileEntry(tw, e.rel, data, mode); err != nil {
				return nil, err
			}
		default:
			// Sockets and device nodes have no place in an image layer.
			continue
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// tarSingleFile builds a tar stream containing one file at the given
// image-absolute path, with the parent directories leading to it.
func tarSingleFile(imagePath string, data []byte, mode int64) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	// Emit headers for each ancestor directory so the layer unpacks the
	// same way regardless of what earlier layers contain.
	var parents []string
	for d := filepath.ToSlash(filepath.Dir(imagePath)); d != "/" && d != "."; d = filepath.ToSlash(filepath.Dir(d)) {
		parents = append(parents, d)
	}
	sort.Strings(parents)
	for _, p := range parents {
		if err := writeDirHeader(tw, tarName(p)); err != nil {
			return nil, err
		}
	}

	if err := writeFileEntry(tw, tarName(imagePath), data, mode); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// tarName converts an image-absolute path to a tar entry name (no leading
// slash).
func tarName(imagePath string) string {
	for len(imagePath) > 0 && imagePath[0] == '/' {
		imagePath = imagePath[1:]
	}
	return imagePath
}

func writeDirHeader(tw *tar.Writer, name string) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name + "/",
		Mode:     0o755,
		ModTime:  layerEpoch,
		Format:   tar.FormatPAX,
	})
}

func writeFileEntry(tw *tar.Writer, name string, data []byte, mode int64) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(data)),
		Mode:     mode,
		ModTime:  layerEpoch,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

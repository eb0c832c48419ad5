// Package image assembles the release container image as an OCI image
// layout archive.
//
// The image is two layers: a minimal base file set (a shell and core
// utilities) and the static build artifact installed at a fixed path. The
// entrypoint points directly at the artifact — not at a shell wrapper —
// so the container's default process is the tool itself. Assembly is
// entirely offline: no daemon, no network, no registry. The resulting
// archive is consumed as an opaque blob by the publisher.
package image

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/shinji-kodama/binforge/internal/model"
)

// Fixed runtime environment for the assembled image. The search path
// covers both the minimal base's binary directory and the directory the
// static artifact is installed into.
const (
	envShell  = "SHELL=/bin/sh"
	envEditor = "EDITOR=vi"
	envPath   = "PATH=/usr/local/bin:/usr/bin:/bin"

	// installDir is where the static artifact lands inside the image.
	installDir = "/usr/local/bin"
)

// OCI layout constants.
const (
	mediaTypeManifest = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeConfig   = "application/vnd.oci.image.config.v1+json"
	mediaTypeLayer    = "application/vnd.oci.image.layer.v1.tar+gzip"

	// refNameAnnotation carries the image reference in the layout index,
	// which is what `docker load` and registry tooling use to name the
	// loaded image.
	refNameAnnotation = "org.opencontainers.image.ref.name"
)

// EntrypointPath returns the image-absolute path the tool is installed at,
// which is also the image's single-element entrypoint.
func EntrypointPath(tool string) string {
	return path.Join(installDir, tool)
}

// descriptor is an OCI content descriptor.
type descriptor struct {
	MediaType   string            `json:"mediaType"`
	Digest      string            `json:"digest"`
	Size        int64             `json:"size"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// manifest is an OCI image manifest.
type manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType"`
	Config        descriptor   `json:"config"`
	Layers        []descriptor `json:"layers"`
}

// index is the OCI layout index.
type index struct {
	SchemaVersion int          `json:"schemaVersion"`
	Manifests     []descriptor `json:"manifests"`
}

// RuntimeConfig is the image's container runtime configuration.
type RuntimeConfig struct {
	Env        []string          `json:"Env,omitempty"`
	Entrypoint []string          `json:"Entrypoint,omitempty"`
	WorkingDir string            `json:"WorkingDir,omitempty"`
	Labels     map[string]string `json:"Labels,omitempty"`
}

// ImageConfig is the OCI image configuration blob.
type ImageConfig struct {
	Created      time.Time     `json:"created"`
	Architecture string        `json:"architecture"`
	OS           string        `json:"os"`
	Config       RuntimeConfig `json:"config"`
	RootFS       struct {
		Type    string   `json:"type"`
		DiffIDs []string `json:"diff_ids"`
	} `json:"rootfs"`
	History []historyEntry `json:"history,omitempty"`
}

type historyEntry struct {
	Created   time.Time `json:"created"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Assembler builds OCI image layout archives.
//
// The zero value is not usable; create one with NewAssembler. The clock
// is injectable so tests can pin the config's created timestamp and
// verify byte-identical assembly.
type Assembler struct {
	// now supplies the image creation timestamp.
	now func() time.Time

	// arch and osName identify the platform the artifact was built for.
	arch   string
	osName string
}

// NewAssembler creates an Assembler targeting linux/amd64 with the real
// clock.
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now, arch: "amd64", osName: "linux"}
}

// WithClock returns a copy of the assembler using the given clock.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	copied := *a
	copied.now = now
	return &copied
}

// Assemble builds the image for the given static artifact and base file
// set and writes the OCI layout archive to destPath.
//
// The artifact must be the static variant: the minimal base ships no
// system libraries, so a dynamically linked binary would fail at exec
// time inside the container. Passing the native variant is rejected up
// front with ImageAssemblyError rather than producing a broken image.
func (a *Assembler) Assemble(artifact *model.BuildArtifact, baseDir, destPath, ref string, labels map[string]string) error {
	if artifact.Mode != model.ModeStatic {
		return model.NewCLIError(model.ExitImageAssembly,
			fmt.Sprintf("image assembly requires the static artifact, got %q — a %s binary cannot run in the minimal base",
				artifact.Mode, artifact.Mode))
	}

	binData, err := os.ReadFile(artifact.Path)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly,
			fmt.Sprintf("build artifact missing at %q", artifact.Path), err)
	}

	if info, err := os.Stat(baseDir); err != nil || !info.IsDir() {
		return model.WrapCLIError(model.ExitImageAssembly,
			fmt.Sprintf("base file set directory %q is missing or not a directory", baseDir), err)
	}

	// Layer 1: the minimal base file set.
	baseTar, err := tarDirectory(baseDir)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly,
			fmt.Sprintf("cannot archive base file set %q", baseDir), err)
	}
	baseLayer, err := newLayer(baseTar)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot compress base layer", err)
	}

	// Layer 2: the static artifact at its fixed install path.
	entrypoint := EntrypointPath(artifact.Tool)
	binTar, err := tarSingleFile(entrypoint, binData, 0o755)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot archive build artifact", err)
	}
	binLayer, err := newLayer(binTar)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot compress artifact layer", err)
	}

	created := a.now().UTC()

	var cfg ImageConfig
	cfg.Created = created
	cfg.Architecture = a.arch
	cfg.OS = a.osName
	cfg.Config = RuntimeConfig{
		Env:        []string{envShell, envEditor, envPath},
		Entrypoint: []string{entrypoint},
		Labels:     labels,
	}
	cfg.RootFS.Type = "layers"
	cfg.RootFS.DiffIDs = []string{baseLayer.diffID, binLayer.diffID}
	cfg.History = []historyEntry{
		{Created: created, CreatedBy: "binforge: base file set"},
		{Created: created, CreatedBy: "binforge: " + entrypoint},
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot encode image config", err)
	}

	man := manifest{
		SchemaVersion: 2,
		MediaType:     mediaTypeManifest,
		Config: descriptor{
			MediaType: mediaTypeConfig,
			Digest:    sha256Digest(cfgJSON),
			Size:      int64(len(cfgJSON)),
		},
		Layers: []descriptor{
			{MediaType: mediaTypeLayer, Digest: baseLayer.digest, Size: int64(len(baseLayer.blob))},
			{MediaType: mediaTypeLayer, Digest: binLayer.digest, Size: int64(len(binLayer.blob))},
		},
	}
	manJSON, err := json.Marshal(man)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot encode image manifest", err)
	}

	idx := index{
		SchemaVersion: 2,
		Manifests: []descriptor{{
			MediaType:   mediaTypeManifest,
			Digest:      sha256Digest(manJSON),
			Size:        int64(len(manJSON)),
			Annotations: map[string]string{refNameAnnotation: ref},
		}},
	}
	idxJSON, err := json.Marshal(idx)
	if err != nil {
		return model.WrapCLIError(model.ExitImageAssembly, "cannot encode layout index", err)
	}

	if err := writeLayoutArchive(destPath, idxJSON, map[string][]byte{
		man.Config.Digest:       cfgJSON,
		idx.Manifests[0].Digest: manJSON,
		baseLayer.digest:        baseLayer.blob,
		binLayer.digest:         binLayer.blob,
	}); err != nil {
		return model.WrapCLIError(model.ExitImageAssembly,
			fmt.Sprintf("cannot write image archive %q", destPath), err)
	}
	return nil
}

// writeLayoutArchive writes the OCI image layout as a single tar file:
// oci-layout, index.json, and one blob per digest.
func writeLayoutArchive(destPath string, indexJSON []byte, blobs map[string][]byte) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	layout := []byte(`{"imageLayoutVersion":"1.0.0"}`)
	if err := writeFileEntry(tw, "oci-layout", layout, 0o644); err != nil {
		return err
	}
	if err := writeFileEntry(tw, "index.json", indexJSON, 0o644); err != nil {
		return err
	}
	if err := writeDirHeader(tw, "blobs"); err != nil {
		return err
	}
	if err := writeDirHeader(tw, "blobs/sha256"); err != nil {
		return err
	}

	// Blob order inside the archive follows sorted digests so the whole
	// archive, not just each blob, is deterministic.
	for _, digest := range sortedDigests(blobs) {
		name := "blobs/sha256/" + digest[len("sha256:"):]
		if err := writeFileEntry(tw, name, blobs[digest], 0o644); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// Inspect reads an OCI layout archive and returns its image config and
// reference annotation. Used by the CLI's inspection output and by tests
// verifying the declared entrypoint and environment.
func Inspect(archivePath string) (*ImageConfig, string, error) {
	files, err := readArchive(archivePath)
	if err != nil {
		return nil, "", model.WrapCLIError(model.ExitImageAssembly,
			fmt.Sprintf("cannot read image archive %q", archivePath), err)
	}

	idxJSON, ok := files["index.json"]
	if !ok {
		return nil, "", model.NewCLIError(model.ExitImageAssembly,
			fmt.Sprintf("archive %q has no index.json", archivePath))
	}
	var idx index
	if err := json.Unmarshal(idxJSON, &idx); err != nil {
		return nil, "", model.WrapCLIError(model.ExitImageAssembly, "invalid layout index", err)
	}
	if len(idx.Manifests) != 1 {
		return nil, "", model.NewCLIError(model.ExitImageAssembly,
			fmt.Sprintf("expected exactly one manifest, found %d", len(idx.Manifests)))
	}

	manJSON, ok := files[blobPath(idx.Manifests[0].Digest)]
	if !ok {
		return nil, "", model.NewCLIError(model.ExitImageAssembly, "manifest blob missing from archive")
	}
	var man manifest
	if err := json.Unmarshal(manJSON, &man); err != nil {
		return nil, "", model.WrapCLIError(model.ExitImageAssembly, "invalid image manifest", err)
	}

	cfgJSON, ok := files[blobPath(man.Config.Digest)]
	if !ok {
		return nil, "", model.NewCLIError(model.ExitImageAssembly, "config blob missing from archive")
	}
	var cfg ImageConfig
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, "", model.WrapCLIError(model.ExitImageAssembly, "invalid image config", err)
	}

	return &cfg, idx.Manifests[0].Annotations[refNameAnnotation], nil
}

// blobPath maps a digest to its path inside the layout archive.
func blobPath(digest string) string {
	return "blobs/sha256/" + digest[len("sha256:"):]
}

// readArchive loads every regular file in a tar archive into memory.
// Release images are a base file set plus one binary, small enough that
// buffering beats a second pass over the stream.
func readArchive(archivePath string) (map[string][]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, err
		}
		files[hdr.Name] = buf.Bytes()
	}
	return files, nil
}

// sortedDigests returns the blob digests in lexical order.
func sortedDigests(blobs map[string][]byte) []string {
	digests := make([]string, 0, len(blobs))
	for d := range blobs {
		digests = append(digests, d)
	}
	sort.Strings(digests)
	return digests
}

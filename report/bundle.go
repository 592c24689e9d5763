package report

import (
	"archive/tar"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

const (
	bundleManifestPath = "manifest.json"
	bundleReportPath   = "report.json"
	bundleVersion      = "hashdiff.bundle.v1"
)

// Fingerprint reads the file at path and returns it as an artifact with its
// BLAKE3 digest.
func Fingerprint(path, role string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return Artifact{Path: path, Role: role, Size: int64(len(data)), BLAKE3: blake3Hex(data)}, nil
}

func blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BundleManifest lists every entry of a failure bundle with its digest.
type BundleManifest struct {
	Version      string            `json:"version"`
	RunID        string            `json:"run_id"`
	ReportBLAKE3 string            `json:"report_blake3"`
	Files        []string          `json:"files"`
	FileBLAKE3   map[string]string `json:"file_blake3"`
	Missing      []string          `json:"missing,omitempty"`
}

type bundleEntry struct {
	path string
	data []byte
	mode int64
}

// Bundle packs the report at reportPath and every artifact it references into
// a tar.gz at outPath. Artifacts whose content no longer matches the recorded
// fingerprint fail the bundle; artifacts that were deleted are listed as
// missing.
func Bundle(reportPath, outPath string) (*BundleManifest, error) {
	if outPath == "" {
		return nil, fmt.Errorf("bundle output path is required")
	}
	r, err := Load(reportPath)
	if err != nil {
		return nil, err
	}
	reportBytes, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	manifest := &BundleManifest{
		Version:      bundleVersion,
		RunID:        r.RunID,
		ReportBLAKE3: blake3Hex(reportBytes),
		FileBLAKE3:   map[string]string{},
	}
	entries := []bundleEntry{{path: bundleReportPath, data: reportBytes, mode: 0o644}}

	seen := map[string]bool{}
	for i, f := range r.Failures {
		for _, a := range f.Artifacts {
			rel := fmt.Sprintf("artifacts/%03d/%s", i+1, filepath.Base(a.Path))
			if seen[rel] {
				continue
			}
			seen[rel] = true
			data, err := os.ReadFile(a.Path)
			if os.IsNotExist(err) {
				manifest.Missing = append(manifest.Missing, a.Path)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read artifact %s: %w", a.Path, err)
			}
			if got := blake3Hex(data); got != a.BLAKE3 {
				return nil, fmt.Errorf("artifact %s changed: blake3 %s, recorded %s", a.Path, got, a.BLAKE3)
			}
			manifest.Files = append(manifest.Files, rel)
			manifest.FileBLAKE3[rel] = a.BLAKE3
			entries = append(entries, bundleEntry{path: rel, data: data, mode: 0o644})
		}
	}
	sort.Strings(manifest.Files)
	sort.Strings(manifest.Missing)

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal bundle manifest: %w", err)
	}
	manifestJSON = append(manifestJSON, '\n')
	entries = append(entries, bundleEntry{path: bundleManifestPath, data: manifestJSON, mode: 0o644})

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	if err := writeBundleTarGz(outPath, entries); err != nil {
		return nil, err
	}
	return manifest, nil
}

// ReadBundleManifest returns the manifest of the bundle at bundlePath.
func ReadBundleManifest(bundlePath string) (*BundleManifest, error) {
	f, err := os.Open(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open bundle gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle tar: %w", err)
		}
		if hdr.Name != bundleManifestPath {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read bundle manifest entry: %w", err)
		}
		var manifest BundleManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("decode bundle manifest: %w", err)
		}
		return &manifest, nil
	}
	return nil, fmt.Errorf("bundle manifest entry %q not found", bundleManifestPath)
}

func writeBundleTarGz(path string, entries []bundleEntry) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close bundle: %w", cerr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	fixed := time.Unix(0, 0).UTC()
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.path,
			Mode:    e.mode,
			Size:    int64(len(e.data)),
			ModTime: fixed,
			Uname:   "root",
			Gname:   "root",
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", e.path, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("write tar entry %s: %w", e.path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

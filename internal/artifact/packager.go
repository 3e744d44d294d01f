// Package artifact packages a built site into a content-addressed archive
// with a manifest, ready for upload to the object store.
package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/jsonval"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

// Artifact describes a packaged and uploaded site.
type Artifact struct {
	ArchiveHash  string // object store hash of the tar.gz
	ManifestHash string // object store hash of the manifest
	Files        int
	TotalSize    int64
}

// FileEntry is one file recorded in the manifest.
type FileEntry struct {
	Path   string
	Size   int64
	SHA256 string
}

// Packager archives site directories and uploads them to the object store.
type Packager struct {
	store storage.ObjectStore
}

// NewPackager creates a packager backed by the given object store.
func NewPackager(store storage.ObjectStore) *Packager {
	return &Packager{store: store}
}

// Package archives siteDir, writes a manifest describing every file, uploads
// both to the object store and records them as references of the run.
func (p *Packager) Package(ctx context.Context, siteDir, runID, commit string) (*Artifact, error) {
	entries, err := collectFiles(siteDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.CategoryBuild, apperrors.SeverityError, "site directory contains no files").
			WithContext("site_dir", siteDir)
	}

	archive, err := buildArchive(siteDir, entries)
	if err != nil {
		return nil, err
	}

	archiveHash, err := p.store.Put(ctx, &storage.Object{Type: storage.ObjectTypeArchive, Data: archive})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to store site archive")
	}

	artifact := &Artifact{ArchiveHash: archiveHash, Files: len(entries)}
	for _, e := range entries {
		artifact.TotalSize += e.Size
	}

	manifest := buildManifest(entries, runID, commit, archiveHash, artifact.TotalSize)
	manifestHash, err := p.store.Put(ctx, &storage.Object{Type: storage.ObjectTypeManifest, Data: []byte(manifest.PrettyString())})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to store manifest")
	}
	artifact.ManifestHash = manifestHash

	if err := p.store.AddRunRef(runID, []string{archiveHash, manifestHash}); err != nil {
		slog.Warn("Failed to record run reference", "run_id", runID, "error", err)
	}

	slog.Info("Artifact packaged",
		"run_id", runID,
		"files", artifact.Files,
		"size", artifact.TotalSize,
		"archive", shortHash(archiveHash))
	return artifact, nil
}

// Fetch retrieves a previously uploaded archive by hash.
func (p *Packager) Fetch(ctx context.Context, archiveHash string) ([]byte, error) {
	obj, err := p.store.Get(ctx, archiveHash)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to fetch archive").
			WithContext("hash", archiveHash)
	}
	return obj.Data, nil
}

func collectFiles(siteDir string) ([]FileEntry, error) {
	var entries []FileEntry
	err := filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(siteDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p) // #nosec G304 - path comes from walking the build output
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		entries = append(entries, FileEntry{
			Path:   filepath.ToSlash(rel),
			Size:   int64(len(data)),
			SHA256: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to scan site directory").
			WithContext("site_dir", siteDir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func buildArchive(siteDir string, entries []FileEntry) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		full := filepath.Join(siteDir, filepath.FromSlash(entry.Path))
		file, err := os.Open(full) // #nosec G304 - path comes from walking the build output
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to open site file").
				WithContext("path", entry.Path)
		}

		hdr := &tar.Header{
			Name:    entry.Path,
			Mode:    0o644,
			Size:    entry.Size,
			ModTime: time.Unix(0, 0), // fixed so identical content yields identical archives
		}
		if err := tw.WriteHeader(hdr); err != nil {
			file.Close()
			return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to write archive header")
		}
		if _, err := io.Copy(tw, file); err != nil {
			file.Close()
			return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to archive site file").
				WithContext("path", entry.Path)
		}
		file.Close()
	}

	if err := tw.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to finalize archive")
	}
	if err := gz.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryFileSystem, apperrors.SeverityError, "failed to finalize compression")
	}
	return buf.Bytes(), nil
}

func buildManifest(entries []FileEntry, runID, commit, archiveHash string, totalSize int64) jsonval.Value {
	files := make([]jsonval.Value, 0, len(entries))
	for _, entry := range entries {
		files = append(files, jsonval.Object(map[string]jsonval.Value{
			"path":   jsonval.String(entry.Path),
			"size":   jsonval.Int(entry.Size),
			"sha256": jsonval.String(entry.SHA256),
		}))
	}
	return jsonval.Object(map[string]jsonval.Value{
		"run_id":     jsonval.String(runID),
		"commit":     jsonval.String(commit),
		"archive":    jsonval.String(archiveHash),
		"file_count": jsonval.Int(int64(len(entries))),
		"total_size": jsonval.Int(totalSize),
		"created_at": jsonval.String(time.Now().UTC().Format(time.RFC3339)),
		"files":      jsonval.Array(files...),
	})
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// Package deploy publishes a packaged site archive to the pages target
// directory using a release layout with an atomic symlink switch.
package deploy

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

// Deployment describes a completed publication.
type Deployment struct {
	RunID      string
	ReleaseDir string
	Files      int
}

// Deployer extracts stored archives into the target directory and switches
// the "current" symlink to the new release.
type Deployer struct {
	cfg    config.DeployConfig
	store  storage.ObjectStore
	issuer *auth.TokenIssuer
}

// NewDeployer creates a deployer for the given target configuration.
func NewDeployer(cfg config.DeployConfig, store storage.ObjectStore, issuer *auth.TokenIssuer) *Deployer {
	return &Deployer{cfg: cfg, store: store, issuer: issuer}
}

// Deploy validates the deploy token, extracts the run's archive into
// releases/<run-id> and atomically points "current" at it. Old releases
// beyond keep_releases are pruned.
func (d *Deployer) Deploy(ctx context.Context, runID, archiveHash, tokenValue string) (*Deployment, error) {
	token, err := d.issuer.Validate(tokenValue)
	if err != nil {
		return nil, err
	}
	if token.RunID != runID {
		return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "deploy token was minted for a different run").
			WithContext("token_run_id", token.RunID).
			WithContext("run_id", runID)
	}

	obj, err := d.store.Get(ctx, archiveHash)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to load archive for deploy").
			WithContext("hash", archiveHash)
	}

	releaseDir := filepath.Join(d.cfg.TargetDir, "releases", runID)
	files, err := extract(obj.Data, releaseDir)
	if err != nil {
		os.RemoveAll(releaseDir)
		return nil, err
	}

	if err := d.switchCurrent(releaseDir); err != nil {
		return nil, err
	}

	d.prune()
	slog.Info("Deployed release", "run_id", runID, "files", files, "release", releaseDir)
	return &Deployment{RunID: runID, ReleaseDir: releaseDir, Files: files}, nil
}

// Current returns the run ID currently published, or empty when nothing is.
func (d *Deployer) Current() string {
	target, err := os.Readlink(filepath.Join(d.cfg.TargetDir, "current"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// switchCurrent points the current symlink at the release by creating a
// temporary link and renaming it over the old one, so readers never observe
// a missing or partial site.
func (d *Deployer) switchCurrent(releaseDir string) error {
	current := filepath.Join(d.cfg.TargetDir, "current")
	tmp := current + ".tmp"

	os.Remove(tmp)
	if err := os.Symlink(releaseDir, tmp); err != nil {
		return apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to create release symlink")
	}
	if err := os.Rename(tmp, current); err != nil {
		os.Remove(tmp)
		return apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to switch current release")
	}
	return nil
}

// prune removes the oldest releases beyond keep_releases. The release backing
// the current symlink is never removed. Pruning is best effort.
func (d *Deployer) prune() {
	releasesDir := filepath.Join(d.cfg.TargetDir, "releases")
	entries, err := os.ReadDir(releasesDir)
	if err != nil || len(entries) <= d.cfg.KeepReleases {
		return
	}

	type release struct {
		name    string
		modTime int64
	}
	var releases []release
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		releases = append(releases, release{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(releases, func(i, j int) bool { return releases[i].modTime < releases[j].modTime })

	current := d.Current()
	excess := len(releases) - d.cfg.KeepReleases
	for _, rel := range releases {
		if excess <= 0 {
			break
		}
		if rel.name == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(releasesDir, rel.name)); err != nil {
			slog.Warn("Failed to prune release", "release", rel.name, "error", err)
			continue
		}
		slog.Debug("Pruned release", "release", rel.name)
		excess--
	}
}

func extract(archive []byte, releaseDir string) (int, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "archive is not valid gzip")
	}
	tr := tar.NewReader(gz)

	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to read archive entry")
		}

		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return files, apperrors.New(apperrors.CategoryDeploy, apperrors.SeverityFatal, "archive entry escapes release directory").
				WithContext("entry", hdr.Name)
		}

		dest := filepath.Join(releaseDir, name)
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return files, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to create release directory")
			}
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return files, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to create release directory")
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G304 G302 - dest is cleaned above, published files are world readable
		if err != nil {
			return files, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to create release file")
		}
		if _, err := io.Copy(out, tr); err != nil { // #nosec G110 - archives come from our own packager
			out.Close()
			return files, apperrors.Wrap(err, apperrors.CategoryDeploy, apperrors.SeverityError, "failed to extract release file")
		}
		out.Close()
		files++
	}
	return files, nil
}

package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/artifact"
	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

type fixture struct {
	deployer *Deployer
	packager *artifact.Packager
	issuer   *auth.TokenIssuer
	target   string
	scopes   auth.ScopeSet
}

func newFixture(t *testing.T, keep int) *fixture {
	t.Helper()
	store, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	target := t.TempDir()
	issuer := auth.NewTokenIssuer(time.Minute)
	cfg := config.DeployConfig{TargetDir: target, ConcurrencyGroup: "pages", KeepReleases: keep}

	return &fixture{
		deployer: NewDeployer(cfg, store, issuer),
		packager: artifact.NewPackager(store),
		issuer:   issuer,
		target:   target,
		scopes: auth.ScopesFromConfig(config.PermissionsConfig{
			Contents: "read", Pages: "write", IDToken: "write",
		}),
	}
}

func (f *fixture) packageSite(t *testing.T, runID, content string) string {
	t.Helper()
	site := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte(content), 0o644))
	art, err := f.packager.Package(context.Background(), site, runID, "commit")
	require.NoError(t, err)
	return art.ArchiveHash
}

func (f *fixture) deploy(t *testing.T, runID, hash string) *Deployment {
	t.Helper()
	token, err := f.issuer.Mint(runID, f.scopes)
	require.NoError(t, err)
	dep, err := f.deployer.Deploy(context.Background(), runID, hash, token.Value)
	require.NoError(t, err)
	return dep
}

func TestDeploySwitchesCurrent(t *testing.T) {
	f := newFixture(t, 5)
	hash := f.packageSite(t, "run-1", "v1")

	dep := f.deploy(t, "run-1", hash)
	assert.Equal(t, 1, dep.Files)
	assert.Equal(t, "run-1", f.deployer.Current())

	data, err := os.ReadFile(filepath.Join(f.target, "current", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestDeployReplacesCurrent(t *testing.T) {
	f := newFixture(t, 5)
	f.deploy(t, "run-1", f.packageSite(t, "run-1", "v1"))
	f.deploy(t, "run-2", f.packageSite(t, "run-2", "v2"))

	assert.Equal(t, "run-2", f.deployer.Current())
	data, err := os.ReadFile(filepath.Join(f.target, "current", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	// Previous release kept on disk for rollback
	_, err = os.Stat(filepath.Join(f.target, "releases", "run-1"))
	assert.NoError(t, err)
}

func TestDeployPrunesOldReleases(t *testing.T) {
	f := newFixture(t, 2)
	for _, runID := range []string{"run-1", "run-2", "run-3", "run-4"} {
		f.deploy(t, runID, f.packageSite(t, runID, "v"+runID))
		// Keep mtimes distinct for prune ordering
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(filepath.Join(f.target, "releases"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "run-4", f.deployer.Current())
}

func TestDeployRejectsBadToken(t *testing.T) {
	f := newFixture(t, 5)
	hash := f.packageSite(t, "run-1", "v1")

	_, err := f.deployer.Deploy(context.Background(), "run-1", hash, "bogus")
	require.Error(t, err)
}

func TestDeployRejectsForeignToken(t *testing.T) {
	f := newFixture(t, 5)
	hash := f.packageSite(t, "run-1", "v1")

	token, err := f.issuer.Mint("run-other", f.scopes)
	require.NoError(t, err)

	_, err = f.deployer.Deploy(context.Background(), "run-1", hash, token.Value)
	require.Error(t, err)
}

func TestDeployMissingArchive(t *testing.T) {
	f := newFixture(t, 5)
	token, err := f.issuer.Mint("run-1", f.scopes)
	require.NoError(t, err)

	_, err = f.deployer.Deploy(context.Background(), "run-1", "0000000000000000000000000000000000000000000000000000000000000000", token.Value)
	require.Error(t, err)
}

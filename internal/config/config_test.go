package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagepress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
project:
  url: https://example.com/owner/proj.git
steps:
  build: cargo doc --no-deps
redirect:
  target: proj/index.html
deploy:
  target_dir: /srv/pages/proj
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Project.Branch)
	assert.Equal(t, "pages", cfg.Deploy.ConcurrencyGroup)
	assert.Equal(t, 5, cfg.Deploy.KeepReleases)
	assert.Equal(t, "read", cfg.Permissions.Contents)
	assert.Equal(t, "write", cfg.Permissions.Pages)
	assert.Equal(t, "write", cfg.Permissions.IDToken)
	assert.Equal(t, "/webhook", cfg.Server.WebhookPath)
	assert.Equal(t, RetryBackoffLinear, cfg.Retry.Backoff)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PAGES_DIR", "/srv/pages/from-env")
	cfg, err := Load(writeConfig(t, `
project:
  url: https://example.com/owner/proj.git
steps:
  build: make docs
redirect:
  target: proj/
deploy:
  target_dir: ${TEST_PAGES_DIR}
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/pages/from-env", cfg.Deploy.TargetDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsReadOnlyIDToken(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"permissions:\n  id_token: read\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id_token must be write")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing url", func(c *Config) { c.Project.URL = "" }, "project.url"},
		{"missing build", func(c *Config) { c.Steps.Build = "" }, "steps.build"},
		{"missing target dir", func(c *Config) { c.Deploy.TargetDir = "" }, "deploy.target_dir"},
		{"absolute redirect", func(c *Config) { c.Redirect.Target = "https://evil.example/x" }, "relative path"},
		{"redirect traversal", func(c *Config) { c.Redirect.Target = "../../etc/passwd" }, "traverse"},
		{"bad scope value", func(c *Config) { c.Permissions.Pages = "admin" }, "unknown scope level"},
		{"pages not writable", func(c *Config) { c.Permissions.Pages = "read" }, "pages must be write"},
		{"contents none", func(c *Config) { c.Permissions.Contents = "none" }, "at least read"},
		{"id_token not writable", func(c *Config) { c.Permissions.IDToken = "read" }, "id_token must be write"},
		{"bad timeout", func(c *Config) { c.Steps.Timeout = "soon" }, "steps.timeout"},
		{"bad webhook path", func(c *Config) { c.Server.WebhookPath = "webhook" }, "must start with /"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagepress.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myproject", cfg.Project.Name)
}

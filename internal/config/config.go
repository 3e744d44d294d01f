// Package config loads and validates the pagepress YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Project     ProjectConfig     `yaml:"project"`
	Steps       StepsConfig       `yaml:"steps"`
	Redirect    RedirectConfig    `yaml:"redirect"`
	Deploy      DeployConfig      `yaml:"deploy"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Server      ServerConfig      `yaml:"server,omitempty"`
	Schedule    ScheduleConfig    `yaml:"schedule,omitempty"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Events      EventsConfig      `yaml:"events,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
}

// ProjectConfig identifies the source repository to publish docs for.
type ProjectConfig struct {
	Name   string      `yaml:"name"`
	URL    string      `yaml:"url"`
	Branch string      `yaml:"branch,omitempty"`
	Auth   *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig represents repository authentication configuration.
type AuthConfig struct {
	Type     string `yaml:"type"` // "token", "basic", "ssh"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// StepsConfig declares the external test and build commands.
type StepsConfig struct {
	Test      string `yaml:"test,omitempty"`
	Build     string `yaml:"build"`
	WorkDir   string `yaml:"work_dir,omitempty"`   // relative to the checkout, default "."
	OutputDir string `yaml:"output_dir,omitempty"` // where the build tool writes the site
	Timeout   string `yaml:"timeout,omitempty"`    // per-step timeout, default 10m
}

// RedirectConfig controls the root index.html rewrite.
type RedirectConfig struct {
	Target string `yaml:"target"` // sub-path the root page forwards to
}

// DeployConfig controls publication to the pages host.
type DeployConfig struct {
	TargetDir        string `yaml:"target_dir"`
	ConcurrencyGroup string `yaml:"concurrency_group,omitempty"` // default "pages"
	KeepReleases     int    `yaml:"keep_releases,omitempty"`     // default 5
}

// PermissionsConfig declares the token scopes granted to runs.
type PermissionsConfig struct {
	Contents string `yaml:"contents,omitempty"` // none|read|write
	Pages    string `yaml:"pages,omitempty"`
	IDToken  string `yaml:"id_token,omitempty"`
}

// ServerConfig configures the webhook/status HTTP server.
type ServerConfig struct {
	Listen        string `yaml:"listen,omitempty"` // default ":8080"
	WebhookPath   string `yaml:"webhook_path,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
	MetricsListen string `yaml:"metrics_listen,omitempty"`
}

// ScheduleConfig enables periodic polling runs in daemon mode.
type ScheduleConfig struct {
	Interval string `yaml:"interval,omitempty"` // e.g. "15m"; empty disables
}

// EventsConfig enables run event publication to NATS.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// StoreConfig locates the artifact and event stores.
type StoreConfig struct {
	DataDir string `yaml:"data_dir,omitempty"` // default ".pagepress"
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 - path comes from the CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Project.Branch == "" {
		c.Project.Branch = "main"
	}
	if c.Project.Name == "" {
		c.Project.Name = "docs"
	}
	if c.Steps.WorkDir == "" {
		c.Steps.WorkDir = "."
	}
	if c.Steps.OutputDir == "" {
		c.Steps.OutputDir = "target/doc"
	}
	if c.Steps.Timeout == "" {
		c.Steps.Timeout = "10m"
	}
	if c.Deploy.ConcurrencyGroup == "" {
		c.Deploy.ConcurrencyGroup = "pages"
	}
	if c.Deploy.KeepReleases <= 0 {
		c.Deploy.KeepReleases = 5
	}
	if c.Permissions.Contents == "" {
		c.Permissions.Contents = "read"
	}
	if c.Permissions.Pages == "" {
		c.Permissions.Pages = "write"
	}
	if c.Permissions.IDToken == "" {
		c.Permissions.IDToken = "write"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/webhook"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = ".pagepress"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "pagepress.runs"
	}
	c.Retry.applyDefaults()
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	return os.WriteFile(configPath, []byte(exampleConfig), 0o644) // #nosec G306 - example config is not secret
}

const exampleConfig = `# pagepress configuration
project:
  name: myproject
  url: https://example.com/owner/myproject.git
  branch: main

steps:
  test: cargo test
  build: cargo doc --no-deps
  output_dir: target/doc

redirect:
  target: myproject/index.html

deploy:
  target_dir: /srv/pages/myproject
  concurrency_group: pages
  keep_releases: 5

permissions:
  contents: read
  pages: write
  id_token: write

server:
  listen: ":8080"
  webhook_path: /webhook
  webhook_secret: ${PAGEPRESS_WEBHOOK_SECRET}
`

package config

import (
	"fmt"
	"strings"
	"time"
)

var scopeLevels = map[string]int{"none": 0, "read": 1, "write": 2}

// Validate checks structural invariants after defaults have been applied.
func (c *Config) Validate() error {
	if c.Project.URL == "" {
		return fmt.Errorf("project.url is required")
	}
	if c.Steps.Build == "" {
		return fmt.Errorf("steps.build is required")
	}
	if c.Deploy.TargetDir == "" {
		return fmt.Errorf("deploy.target_dir is required")
	}
	if err := validateRedirectTarget(c.Redirect.Target); err != nil {
		return err
	}
	if err := c.Permissions.validate(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Steps.Timeout); err != nil {
		return fmt.Errorf("steps.timeout: %w", err)
	}
	if c.Schedule.Interval != "" {
		if _, err := time.ParseDuration(c.Schedule.Interval); err != nil {
			return fmt.Errorf("schedule.interval: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Retry.InitialDelay); err != nil {
		return fmt.Errorf("retry.initial_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Retry.MaxDelay); err != nil {
		return fmt.Errorf("retry.max_delay: %w", err)
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhook_path must start with /")
	}
	return nil
}

func validateRedirectTarget(target string) error {
	if target == "" {
		return fmt.Errorf("redirect.target is required")
	}
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		return fmt.Errorf("redirect.target must be a relative path, got %q", target)
	}
	for _, part := range strings.Split(strings.TrimPrefix(target, "/"), "/") {
		if part == ".." {
			return fmt.Errorf("redirect.target must not traverse upwards: %q", target)
		}
	}
	return nil
}

func (p *PermissionsConfig) validate() error {
	for name, value := range map[string]string{
		"contents": p.Contents,
		"pages":    p.Pages,
		"id_token": p.IDToken,
	} {
		if _, ok := scopeLevels[value]; !ok {
			return fmt.Errorf("permissions.%s: unknown scope level %q", name, value)
		}
	}
	if scopeLevels[p.Contents] < scopeLevels["read"] {
		return fmt.Errorf("permissions.contents must be at least read")
	}
	if scopeLevels[p.Pages] < scopeLevels["write"] {
		return fmt.Errorf("permissions.pages must be write")
	}
	if scopeLevels[p.IDToken] < scopeLevels["write"] {
		return fmt.Errorf("permissions.id_token must be write")
	}
	return nil
}

// ScopeLevel returns the numeric level of a scope value (none=0, read=1, write=2).
// Unknown values map to none.
func ScopeLevel(value string) int {
	return scopeLevels[value]
}

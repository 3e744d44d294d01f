package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/artifact"
	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/gitsource"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

type stubGit struct {
	dir string
	err error
}

func (s *stubGit) Checkout(config.ProjectConfig) (*gitsource.Checkout, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &gitsource.Checkout{Path: s.dir, Commit: "abcdef1234567890", Branch: "main"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Project:  config.ProjectConfig{Name: "docs", URL: "https://example.com/docs.git", Branch: "main"},
		Steps:    config.StepsConfig{Test: "true", Build: "mkdir -p target/doc/docs && echo site > target/doc/docs/index.html", WorkDir: ".", OutputDir: "target/doc", Timeout: "30s"},
		Redirect: config.RedirectConfig{Target: "docs/index.html"},
		Deploy:   config.DeployConfig{TargetDir: t.TempDir(), ConcurrencyGroup: "pages", KeepReleases: 5},
		Permissions: config.PermissionsConfig{
			Contents: "read", Pages: "write", IDToken: "write",
		},
	}
	return cfg
}

type collected struct {
	names []string
}

func (c *collected) record(e Event) error {
	c.names = append(c.names, e.Name())
	return nil
}

func newTestPipeline(t *testing.T, cfg *config.Config, git GitClient, deploy DeployFunc) (*Pipeline, *collected) {
	t.Helper()
	store, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	bus := NewBus()
	events := &collected{}
	for _, name := range []string{EventRunStarted, EventStageStarted, EventStageCompleted, EventStageFailed, EventRunCompleted, EventRunFailed} {
		bus.Subscribe(name, events.record)
	}

	if deploy == nil {
		deploy = func(ctx context.Context, runID, archiveHash, tokenValue string) (int, error) {
			return 1, nil
		}
	}

	p, err := New(Options{
		Config:   cfg,
		Git:      git,
		Packager: artifact.NewPackager(store),
		Deploy:   deploy,
		Issuer:   auth.NewTokenIssuer(time.Minute),
		Bus:      bus,
	})
	require.NoError(t, err)
	return p, events
}

func TestExecuteSuccess(t *testing.T) {
	cfg := testConfig(t)
	p, events := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	report, err := p.Execute(context.Background(), "run-1", "push")
	require.NoError(t, err)

	assert.Equal(t, "success", report.Status)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "abcdef1234567890", report.Commit)
	assert.Len(t, report.Stages, len(Stages))
	for _, s := range report.Stages {
		assert.Equal(t, "ok", s.Status)
	}
	assert.NotEmpty(t, report.ArchiveHash)
	assert.Contains(t, events.names, EventRunStarted)
	assert.Contains(t, events.names, EventRunCompleted)
	assert.NotContains(t, events.names, EventRunFailed)
}

func TestExecuteAbortsOnTestFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps.Test = "exit 1"
	p, events := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	report, err := p.Execute(context.Background(), "run-2", "push")
	require.Error(t, err)

	assert.Equal(t, "failed", report.Status)
	assert.Equal(t, StageTest, report.FailedStage())

	// Everything after the failed stage is skipped, nothing else runs
	statuses := map[StageName]string{}
	for _, s := range report.Stages {
		statuses[s.Stage] = s.Status
	}
	assert.Equal(t, "ok", statuses[StageCheckout])
	assert.Equal(t, "failed", statuses[StageTest])
	assert.Equal(t, "skipped", statuses[StageBuild])
	assert.Equal(t, "skipped", statuses[StageDeploy])
	assert.Contains(t, events.names, EventRunFailed)
}

func TestExecuteAbortsOnCheckoutFailure(t *testing.T) {
	cfg := testConfig(t)
	gitErr := apperrors.New(apperrors.CategoryGit, apperrors.SeverityFatal, "repository does not exist")
	p, _ := newTestPipeline(t, cfg, &stubGit{err: gitErr}, nil)

	report, err := p.Execute(context.Background(), "run-3", "manual")
	require.Error(t, err)
	assert.Equal(t, StageCheckout, report.FailedStage())
}

func TestExecuteFailsOnBrokenLinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps.Build = "mkdir -p target/doc/docs && echo '<a href=\"missing.html\">x</a>' > target/doc/docs/index.html"
	p, _ := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	report, err := p.Execute(context.Background(), "run-4", "push")
	require.Error(t, err)
	assert.Equal(t, StageVerify, report.FailedStage())
	assert.Equal(t, 1, report.BrokenLinks)
}

func TestExecuteInsufficientScopes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Permissions.Contents = "none"
	p, _ := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	report, err := p.Execute(context.Background(), "run-5", "push")
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryAuth))
	assert.Equal(t, StageCheckout, report.FailedStage())
}

func TestExecuteDeployFailure(t *testing.T) {
	cfg := testConfig(t)
	deploy := func(ctx context.Context, runID, archiveHash, tokenValue string) (int, error) {
		return 0, errors.New("target unreachable")
	}
	p, _ := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, deploy)

	report, err := p.Execute(context.Background(), "run-6", "push")
	require.Error(t, err)
	assert.Equal(t, StageDeploy, report.FailedStage())
}

func TestExecuteCanceledContext(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Execute(ctx, "run-7", "push")
	require.Error(t, err)
	assert.Equal(t, "failed", report.Status)
}

func TestBusPublishesInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(EventRunStarted, func(e Event) error {
		got = append(got, "first")
		return nil
	})
	bus.Subscribe(EventRunStarted, func(e Event) error {
		got = append(got, "second")
		return nil
	})

	require.NoError(t, bus.Publish(RunStarted{RunID: "r"}))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBusStopsOnHandlerError(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventRunStarted, func(e Event) error { return errors.New("boom") })
	called := false
	bus.Subscribe(EventRunStarted, func(e Event) error { called = true; return nil })

	require.Error(t, bus.Publish(RunStarted{RunID: "r"}))
	assert.False(t, called)
}

func TestReportWrittenForFailedBuildOutput(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steps.Build = "true" // no output dir produced
	p, _ := newTestPipeline(t, cfg, &stubGit{dir: t.TempDir()}, nil)

	report, err := p.Execute(context.Background(), "run-8", "push")
	require.Error(t, err)
	assert.Equal(t, StageRedirect, report.FailedStage())
}

// Package pipeline orchestrates a publish run: checkout, test, build,
// redirect rewrite, link verification, packaging and deploy. Stages execute
// in fixed order and the first failure aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pagepress/internal/artifact"
	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/gitsource"
	"git.home.luguber.info/inful/pagepress/internal/linkcheck"
	"git.home.luguber.info/inful/pagepress/internal/metrics"
	"git.home.luguber.info/inful/pagepress/internal/observability"
	"git.home.luguber.info/inful/pagepress/internal/redirect"
	"git.home.luguber.info/inful/pagepress/internal/runner"
)

// GitClient checks out the project repository for a run.
type GitClient interface {
	Checkout(project config.ProjectConfig) (*gitsource.Checkout, error)
}

// Pipeline executes publish runs for one configured project.
type Pipeline struct {
	cfg      *config.Config
	git      GitClient
	packager *artifact.Packager
	deploy   DeployFunc
	issuer   *auth.TokenIssuer
	scopes   auth.ScopeSet
	bus      *Bus
	recorder metrics.Recorder

	stepTimeout time.Duration
}

// Options wires the pipeline's collaborators.
type Options struct {
	Config   *config.Config
	Git      GitClient
	Packager *artifact.Packager
	Deploy   DeployFunc
	Issuer   *auth.TokenIssuer
	Bus      *Bus
	Recorder metrics.Recorder
}

// DeployFunc publishes the run's archive; it returns the number of files
// extracted into the new release.
type DeployFunc func(ctx context.Context, runID, archiveHash, tokenValue string) (int, error)

// New creates a pipeline from its collaborators. A nil recorder disables
// metrics and a nil bus disables event publication.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, apperrors.New(apperrors.CategoryInternal, apperrors.SeverityFatal, "pipeline requires a config")
	}

	timeout, err := time.ParseDuration(opts.Config.Steps.Timeout)
	if err != nil {
		timeout = 10 * time.Minute
	}

	p := &Pipeline{
		cfg:         opts.Config,
		git:         opts.Git,
		packager:    opts.Packager,
		deploy:      opts.Deploy,
		issuer:      opts.Issuer,
		scopes:      auth.ScopesFromConfig(opts.Config.Permissions),
		bus:         opts.Bus,
		recorder:    opts.Recorder,
		stepTimeout: timeout,
	}
	if p.bus == nil {
		p.bus = NewBus()
	}
	if p.recorder == nil {
		p.recorder = metrics.NoopRecorder{}
	}
	return p, nil
}

// Execute runs every stage for the given run. It returns the report in all
// cases; the error is the failing stage's error and carries retryability.
func (p *Pipeline) Execute(ctx context.Context, runID, trigger string) (*RunReport, error) {
	ctx = observability.WithRunID(ctx, runID)
	ctx = observability.WithGroup(ctx, p.cfg.Deploy.ConcurrencyGroup)

	report := &RunReport{
		RunID:     runID,
		Group:     p.cfg.Deploy.ConcurrencyGroup,
		Trigger:   trigger,
		Branch:    p.cfg.Project.Branch,
		StartedAt: time.Now(),
	}
	p.publish(RunStarted{RunID: runID, Group: report.Group, Branch: report.Branch, Trigger: trigger, At: report.StartedAt})

	state := &runState{}
	err := p.runStages(ctx, runID, report, state)

	report.FinishedAt = time.Now()
	if err != nil {
		report.Status = "failed"
		p.recorder.IncRunOutcome("failed")
		p.recorder.ObserveRunDuration(report.Duration())
		p.publish(RunFailed{RunID: runID, Stage: report.FailedStage(), Err: err.Error(), Duration: report.Duration()})
		return report, err
	}

	report.Status = "success"
	p.recorder.IncRunOutcome("success")
	p.recorder.ObserveRunDuration(report.Duration())
	p.publish(RunCompleted{RunID: runID, Commit: report.Commit, Duration: report.Duration()})
	return report, nil
}

// runState carries intermediate results between stages.
type runState struct {
	checkout *gitsource.Checkout
	siteDir  string
	artifact *artifact.Artifact
}

func (p *Pipeline) runStages(ctx context.Context, runID string, report *RunReport, state *runState) error {
	for _, stage := range Stages {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(err, apperrors.CategoryRuntime, apperrors.SeverityError, "run canceled")
		}

		stageCtx := observability.WithStage(ctx, string(stage))
		start := time.Now()
		p.publish(StageStarted{RunID: runID, Stage: stage, At: start})
		observability.InfoContext(stageCtx, "Stage starting")

		err := p.runStage(stageCtx, stage, runID, report, state)
		duration := time.Since(start)
		p.recorder.ObserveStageDuration(string(stage), duration)

		if err != nil {
			report.Stages = append(report.Stages, StageResult{Stage: stage, Status: "failed", Duration: duration, Error: err.Error()})
			p.recorder.IncStageResult(string(stage), metrics.ResultFailure)
			p.publish(StageFailed{RunID: runID, Stage: stage, Err: err.Error(), Duration: duration})
			observability.ErrorContext(stageCtx, "Stage failed", slog.String("error", err.Error()))
			p.markSkipped(report, stage)
			return err
		}

		report.Stages = append(report.Stages, StageResult{Stage: stage, Status: "ok", Duration: duration})
		p.recorder.IncStageResult(string(stage), metrics.ResultSuccess)
		p.publish(StageCompleted{RunID: runID, Stage: stage, Duration: duration})
		observability.InfoContext(stageCtx, "Stage completed", slog.Duration("duration", duration))
	}
	return nil
}

// markSkipped records the stages after a failure as skipped so the report
// shows the full plan.
func (p *Pipeline) markSkipped(report *RunReport, failed StageName) {
	seen := false
	for _, stage := range Stages {
		if stage == failed {
			seen = true
			continue
		}
		if seen {
			report.Stages = append(report.Stages, StageResult{Stage: stage, Status: "skipped"})
		}
	}
}

func (p *Pipeline) runStage(ctx context.Context, stage StageName, runID string, report *RunReport, state *runState) error {
	switch stage {
	case StageCheckout:
		return p.stageCheckout(report, state)
	case StageTest:
		return p.stageCommand(ctx, "test", p.cfg.Steps.Test, state)
	case StageBuild:
		return p.stageBuild(ctx, state)
	case StageRedirect:
		return redirect.WriteRootPage(state.siteDir, p.cfg.Redirect.Target)
	case StageVerify:
		return p.stageVerify(ctx, report, state)
	case StagePackage:
		return p.stagePackage(ctx, runID, report, state)
	case StageDeploy:
		return p.stageDeploy(ctx, runID, report, state)
	default:
		return apperrors.New(apperrors.CategoryInternal, apperrors.SeverityFatal, fmt.Sprintf("unknown stage %s", stage))
	}
}

func (p *Pipeline) stageCheckout(report *RunReport, state *runState) error {
	if err := p.scopes.Require(auth.ScopeContents, auth.LevelRead); err != nil {
		return err
	}
	checkout, err := p.git.Checkout(p.cfg.Project)
	if err != nil {
		return err
	}
	state.checkout = checkout
	report.Commit = checkout.Commit
	return nil
}

func (p *Pipeline) stageCommand(ctx context.Context, name, command string, state *runState) error {
	_, err := runner.Run(ctx, runner.Step{
		Name:    name,
		Command: command,
		Dir:     filepath.Join(state.checkout.Path, p.cfg.Steps.WorkDir),
		Timeout: p.stepTimeout,
	})
	return err
}

func (p *Pipeline) stageBuild(ctx context.Context, state *runState) error {
	if err := p.stageCommand(ctx, "build", p.cfg.Steps.Build, state); err != nil {
		return err
	}
	state.siteDir = filepath.Join(state.checkout.Path, p.cfg.Steps.WorkDir, p.cfg.Steps.OutputDir)
	return nil
}

func (p *Pipeline) stageVerify(ctx context.Context, report *RunReport, state *runState) error {
	broken, err := linkcheck.NewVerifier(state.siteDir).Verify(ctx)
	if err != nil {
		return err
	}
	report.BrokenLinks = len(broken)
	if len(broken) > 0 {
		first := broken[0]
		return apperrors.New(apperrors.CategoryValidation, apperrors.SeverityError,
			fmt.Sprintf("%d broken internal links, first: %s -> %s", len(broken), first.Page, first.URL))
	}
	return nil
}

func (p *Pipeline) stagePackage(ctx context.Context, runID string, report *RunReport, state *runState) error {
	art, err := p.packager.Package(ctx, state.siteDir, runID, state.checkout.Commit)
	if err != nil {
		return err
	}
	state.artifact = art
	report.ArchiveHash = art.ArchiveHash
	report.FilesOut = art.Files
	return nil
}

func (p *Pipeline) stageDeploy(ctx context.Context, runID string, report *RunReport, state *runState) error {
	token, err := p.issuer.Mint(runID, p.scopes)
	if err != nil {
		return err
	}
	defer p.issuer.Revoke(token.Value)

	files, err := p.deploy(ctx, runID, state.artifact.ArchiveHash, token.Value)
	if err != nil {
		p.recorder.IncDeploy(report.Group, false)
		return err
	}
	p.recorder.IncDeploy(report.Group, true)
	report.FilesOut = files
	return nil
}

func (p *Pipeline) publish(e Event) {
	if err := p.bus.Publish(e); err != nil {
		observability.ErrorContext(context.Background(), "Event handler failed",
			slog.String("event", e.Name()), slog.String("error", err.Error()))
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagepress/internal/artifact"
	"git.home.luguber.info/inful/pagepress/internal/auth"
	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/deploy"
	"git.home.luguber.info/inful/pagepress/internal/gitsource"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
	"git.home.luguber.info/inful/pagepress/internal/report"
	"git.home.luguber.info/inful/pagepress/internal/slug"
	"git.home.luguber.info/inful/pagepress/internal/storage"
)

// runOnce executes a single pipeline run outside the daemon and prints the
// report to stdout.
func runOnce(cfg *config.Config, skipDeploy bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFSStore(filepath.Join(cfg.Store.DataDir, "objects"))
	if err != nil {
		return err
	}

	issuer := auth.NewTokenIssuer(15 * time.Minute)
	deployer := deploy.NewDeployer(cfg.Deploy, store, issuer)
	workspace := filepath.Join(cfg.Store.DataDir, "work", slug.Make(cfg.Project.Name))

	deployFn := func(ctx context.Context, runID, archiveHash, tokenValue string) (int, error) {
		if skipDeploy {
			return 0, nil
		}
		dep, err := deployer.Deploy(ctx, runID, archiveHash, tokenValue)
		if err != nil {
			return 0, err
		}
		return dep.Files, nil
	}

	p, err := pipeline.New(pipeline.Options{
		Config:   cfg,
		Git:      gitsource.NewClient(workspace),
		Packager: artifact.NewPackager(store),
		Deploy:   deployFn,
		Issuer:   issuer,
	})
	if err != nil {
		return err
	}

	runReport, runErr := p.Execute(ctx, uuid.New().String(), "manual")
	if runReport != nil {
		fmt.Println(report.Markdown(runReport))
	}
	return runErr
}

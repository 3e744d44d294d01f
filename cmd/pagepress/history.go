package main

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/eventstore"
)

// showHistory prints the most recent runs recorded in the event store.
func showHistory(cfg *config.Config, limit int) error {
	store, err := eventstore.NewSQLiteStore(filepath.Join(cfg.Store.DataDir, "events.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	projection := eventstore.NewRunHistoryProjection(store, limit)
	if err := projection.Rebuild(context.Background()); err != nil {
		return err
	}

	runs := projection.GetHistory()
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-36s  %-8s  %-8s  %-20s  %s\n", "RUN", "TRIGGER", "STATUS", "STARTED", "DETAIL")
	for _, run := range runs {
		detail := run.Commit
		if run.Status == "failed" && run.ErrorStage != "" {
			detail = fmt.Sprintf("%s: %s", run.ErrorStage, run.ErrorMessage)
		}
		fmt.Printf("%-36s  %-8s  %-8s  %-20s  %s\n",
			run.RunID, run.Trigger, run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"), detail)
	}
	return nil
}

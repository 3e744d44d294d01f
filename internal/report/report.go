// Package report renders run reports as markdown and HTML for the status
// page and for archival in the object store.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/pagepress/internal/pipeline"
)

// Markdown renders the run report as a markdown document.
func Markdown(r *pipeline.RunReport) string {
	var b strings.Builder

	status := "✅ success"
	if !r.Succeeded() {
		status = "❌ failed"
	}

	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- **Status:** %s\n", status)
	fmt.Fprintf(&b, "- **Trigger:** %s\n", r.Trigger)
	fmt.Fprintf(&b, "- **Branch:** %s\n", r.Branch)
	if r.Commit != "" {
		fmt.Fprintf(&b, "- **Commit:** `%s`\n", shortCommit(r.Commit))
	}
	fmt.Fprintf(&b, "- **Group:** %s\n", r.Group)
	fmt.Fprintf(&b, "- **Started:** %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", r.Duration().Round(time.Millisecond))
	if r.ArchiveHash != "" {
		fmt.Fprintf(&b, "- **Archive:** `%s`\n", shortCommit(r.ArchiveHash))
	}
	if r.FilesOut > 0 {
		fmt.Fprintf(&b, "- **Files published:** %d\n", r.FilesOut)
	}

	b.WriteString("\n## Stages\n\n")
	b.WriteString("| Stage | Status | Duration |\n")
	b.WriteString("|-------|--------|----------|\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", s.Stage, stageIcon(s.Status), s.Duration.Round(time.Millisecond))
	}

	if failed := r.FailedStage(); failed != "" {
		b.WriteString("\n## Failure\n\n")
		for _, s := range r.Stages {
			if s.Status == "failed" {
				fmt.Fprintf(&b, "Stage `%s` failed:\n\n```\n%s\n```\n", s.Stage, s.Error)
			}
		}
	}

	if r.BrokenLinks > 0 {
		fmt.Fprintf(&b, "\n%d broken internal links were found.\n", r.BrokenLinks)
	}

	return b.String()
}

// HTML renders the run report as an HTML fragment.
func HTML(r *pipeline.RunReport) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func stageIcon(status string) string {
	switch status {
	case "ok":
		return "✅"
	case "failed":
		return "❌"
	case "skipped":
		return "⏭"
	default:
		return status
	}
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

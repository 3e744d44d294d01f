package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/pipeline"
)

func sampleReport(status string) *pipeline.RunReport {
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	r := &pipeline.RunReport{
		RunID:       "run-42",
		Group:       "pages",
		Trigger:     "push",
		Branch:      "main",
		Commit:      "abcdef1234567890",
		Status:      status,
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		ArchiveHash: "feedfacefeedfacefeedface",
		FilesOut:    17,
	}
	r.Stages = []pipeline.StageResult{
		{Stage: pipeline.StageCheckout, Status: "ok", Duration: 2 * time.Second},
		{Stage: pipeline.StageTest, Status: "ok", Duration: 30 * time.Second},
		{Stage: pipeline.StageBuild, Status: "ok", Duration: time.Minute},
	}
	return r
}

func TestMarkdownSuccess(t *testing.T) {
	md := Markdown(sampleReport("success"))

	assert.Contains(t, md, "# Run run-42")
	assert.Contains(t, md, "success")
	assert.Contains(t, md, "`abcdef12`")
	assert.Contains(t, md, "| checkout |")
	assert.Contains(t, md, "Files published:** 17")
	assert.NotContains(t, md, "## Failure")
}

func TestMarkdownFailure(t *testing.T) {
	r := sampleReport("failed")
	r.Stages = append(r.Stages, pipeline.StageResult{
		Stage: pipeline.StageRedirect, Status: "failed", Duration: time.Second,
		Error: "validation (warning): redirect target must not contain .. segments",
	})
	r.Stages = append(r.Stages, pipeline.StageResult{Stage: pipeline.StageDeploy, Status: "skipped"})

	md := Markdown(r)
	assert.Contains(t, md, "## Failure")
	assert.Contains(t, md, "Stage `redirect` failed")
	assert.Contains(t, md, "redirect target must not contain")
}

func TestHTMLRendersTable(t *testing.T) {
	html, err := HTML(sampleReport("success"))
	require.NoError(t, err)

	assert.True(t, strings.Contains(html, "<table>"))
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "run-42")
	assert.Contains(t, html, "<code>abcdef12</code>")
}

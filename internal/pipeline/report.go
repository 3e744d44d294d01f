package pipeline

import "time"

// StageName identifies one pipeline stage.
type StageName string

const (
	StageCheckout StageName = "checkout"
	StageTest     StageName = "test"
	StageBuild    StageName = "build"
	StageRedirect StageName = "redirect"
	StageVerify   StageName = "verify"
	StagePackage  StageName = "package"
	StageDeploy   StageName = "deploy"
)

// Stages is the fixed execution order of a run.
var Stages = []StageName{
	StageCheckout,
	StageTest,
	StageBuild,
	StageRedirect,
	StageVerify,
	StagePackage,
	StageDeploy,
}

// StageResult records the outcome of one executed stage.
type StageResult struct {
	Stage    StageName     `json:"stage"`
	Status   string        `json:"status"` // "ok", "failed", "skipped"
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunReport is the full record of one pipeline run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	Group      string        `json:"group"`
	Trigger    string        `json:"trigger"` // "push", "manual", "schedule"
	Branch     string        `json:"branch"`
	Commit     string        `json:"commit,omitempty"`
	Status     string        `json:"status"` // "success", "failed"
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageResult `json:"stages"`

	ArchiveHash string `json:"archive_hash,omitempty"`
	BrokenLinks int    `json:"broken_links,omitempty"`
	FilesOut    int    `json:"files_out,omitempty"`
}

// Succeeded reports whether every stage completed.
func (r *RunReport) Succeeded() bool { return r.Status == "success" }

// FailedStage returns the stage that aborted the run, or empty on success.
func (r *RunReport) FailedStage() StageName {
	for _, s := range r.Stages {
		if s.Status == "failed" {
			return s.Stage
		}
	}
	return ""
}

// Duration returns the wall-clock time of the whole run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

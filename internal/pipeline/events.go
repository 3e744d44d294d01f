package pipeline

import "time"

// Event is a domain event published by the pipeline and consumed by handlers.
type Event interface {
	Name() string
	GetRunID() string
}

// RunStarted is published when a run begins executing.
type RunStarted struct {
	RunID   string
	Group   string
	Branch  string
	Trigger string
	At      time.Time
}

func (e RunStarted) Name() string     { return EventRunStarted }
func (e RunStarted) GetRunID() string { return e.RunID }

// StageStarted is published when a stage begins.
type StageStarted struct {
	RunID string
	Stage StageName
	At    time.Time
}

func (e StageStarted) Name() string     { return EventStageStarted }
func (e StageStarted) GetRunID() string { return e.RunID }

// StageCompleted is published when a stage succeeds.
type StageCompleted struct {
	RunID    string
	Stage    StageName
	Duration time.Duration
}

func (e StageCompleted) Name() string     { return EventStageCompleted }
func (e StageCompleted) GetRunID() string { return e.RunID }

// StageFailed is published when a stage fails; the run aborts after it.
type StageFailed struct {
	RunID    string
	Stage    StageName
	Err      string
	Duration time.Duration
}

func (e StageFailed) Name() string     { return EventStageFailed }
func (e StageFailed) GetRunID() string { return e.RunID }

// RunCompleted is published when every stage succeeded.
type RunCompleted struct {
	RunID    string
	Commit   string
	Duration time.Duration
}

func (e RunCompleted) Name() string     { return EventRunCompleted }
func (e RunCompleted) GetRunID() string { return e.RunID }

// RunFailed is published when the run aborted.
type RunFailed struct {
	RunID    string
	Stage    StageName
	Err      string
	Duration time.Duration
}

func (e RunFailed) Name() string     { return EventRunFailed }
func (e RunFailed) GetRunID() string { return e.RunID }

// Event names used on the bus and in the event store.
const (
	EventRunStarted     = "RunStarted"
	EventStageStarted   = "StageStarted"
	EventStageCompleted = "StageCompleted"
	EventStageFailed    = "StageFailed"
	EventRunCompleted   = "RunCompleted"
	EventRunFailed      = "RunFailed"
)

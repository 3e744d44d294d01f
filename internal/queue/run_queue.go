// Package queue schedules publish runs. Runs in the same concurrency group
// execute strictly one at a time; queued runs wait rather than being
// canceled. Transient stage failures are retried per the retry policy.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
	"git.home.luguber.info/inful/pagepress/internal/metrics"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
	"git.home.luguber.info/inful/pagepress/internal/retry"
)

// RunStatus represents the current status of a queued run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// RunJob represents a single run in the queue.
type RunJob struct {
	ID          string              `json:"id"`
	Trigger     string              `json:"trigger"` // "push", "manual", "schedule"
	Group       string              `json:"group"`
	Status      RunStatus           `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Duration    time.Duration       `json:"duration,omitempty"`
	Attempts    int                 `json:"attempts,omitempty"`
	Error       string              `json:"error,omitempty"`
	Report      *pipeline.RunReport `json:"report,omitempty"`

	cancel context.CancelFunc
}

// Runner executes one run end to end.
type Runner interface {
	Execute(ctx context.Context, runID, trigger string) (*pipeline.RunReport, error)
}

// RunQueue manages queued runs with one serialized worker lane per
// concurrency group.
type RunQueue struct {
	laneSize int
	recorder metrics.Recorder
	sleep    func(time.Duration) // replaceable in tests

	mu          sync.RWMutex
	policy      retry.Policy
	runner      Runner
	lanes       map[string]chan *RunJob
	active      map[string]*RunJob
	history     []*RunJob
	historySize int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopping bool
}

// NewRunQueue creates a queue executing runs with the given runner.
func NewRunQueue(runner Runner, policy retry.Policy, recorder metrics.Recorder) *RunQueue {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &RunQueue{
		laneSize:    100,
		policy:      policy,
		runner:      runner,
		recorder:    recorder,
		sleep:       time.Sleep,
		lanes:       make(map[string]chan *RunJob),
		active:      make(map[string]*RunJob),
		historySize: 50,
	}
}

// Start begins accepting and processing runs.
func (q *RunQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.started = true
	slog.Info("Run queue started")
}

// Stop cancels the active runs and waits for workers to drain.
func (q *RunQueue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopping {
		q.mu.Unlock()
		return
	}
	q.stopping = true
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	slog.Info("Run queue stopped")
}

// Enqueue adds a run to its group's lane. The lane worker is created on
// first use. Returns an error when the queue is stopped or the lane is full.
func (q *RunQueue) Enqueue(job *RunJob) error {
	if job == nil || job.ID == "" {
		return apperrors.New(apperrors.CategoryInternal, apperrors.SeverityError, "run job requires an ID")
	}
	if job.Group == "" {
		job.Group = "pages"
	}
	job.Status = RunStatusQueued
	job.CreatedAt = time.Now()

	q.mu.Lock()
	if !q.started || q.stopping {
		q.mu.Unlock()
		return apperrors.New(apperrors.CategoryDaemon, apperrors.SeverityError, "run queue is not accepting jobs")
	}
	lane, ok := q.lanes[job.Group]
	if !ok {
		lane = make(chan *RunJob, q.laneSize)
		q.lanes[job.Group] = lane
		q.wg.Add(1)
		go q.worker(job.Group, lane)
	}
	q.mu.Unlock()

	select {
	case lane <- job:
		q.recorder.SetQueueDepth(job.Group, len(lane))
		slog.Info("Run enqueued", "run_id", job.ID, "trigger", job.Trigger, "group", job.Group)
		return nil
	default:
		return apperrors.New(apperrors.CategoryDaemon, apperrors.SeverityError,
			fmt.Sprintf("run queue for group %s is full", job.Group))
	}
}

// SetRunner swaps the runner used by subsequent runs. In-flight runs keep
// the runner they started with.
func (q *RunQueue) SetRunner(runner Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runner = runner
}

// SetPolicy swaps the retry policy applied to subsequent runs.
func (q *RunQueue) SetPolicy(policy retry.Policy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policy = policy
}

// Depth returns the number of queued runs for a group.
func (q *RunQueue) Depth(group string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if lane, ok := q.lanes[group]; ok {
		return len(lane)
	}
	return 0
}

// GetActive returns snapshots of the currently running jobs, taken when each
// run started. Callers may mutate the returned values freely.
func (q *RunQueue) GetActive() []RunJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	active := make([]RunJob, 0, len(q.active))
	for _, job := range q.active {
		active = append(active, *job)
	}
	return active
}

// GetHistory returns recent completed jobs, oldest first.
func (q *RunQueue) GetHistory() []*RunJob {
	q.mu.RLock()
	defer q.mu.RUnlock()
	history := make([]*RunJob, len(q.history))
	copy(history, q.history)
	return history
}

// worker drains one group's lane, one run at a time. Serialization per
// group means at most one deploy per target is ever in flight.
func (q *RunQueue) worker(group string, lane chan *RunJob) {
	defer q.wg.Done()
	slog.Debug("Queue worker started", "group", group)

	for {
		select {
		case <-q.ctx.Done():
			slog.Debug("Queue worker stopped", "group", group)
			return
		case job := <-lane:
			if job != nil {
				q.recorder.SetQueueDepth(group, len(lane))
				q.processJob(job)
			}
		}
	}
}

func (q *RunQueue) processJob(job *RunJob) {
	jobCtx, cancel := context.WithCancel(q.ctx)
	job.cancel = cancel
	defer cancel()

	startTime := time.Now()
	job.StartedAt = &startTime
	job.Status = RunStatusRunning

	// The active map holds a private snapshot so the worker can keep
	// mutating the live job without racing readers.
	q.mu.Lock()
	snapshot := *job
	q.active[job.ID] = &snapshot
	q.mu.Unlock()

	slog.Info("Run started", "run_id", job.ID, "trigger", job.Trigger, "group", job.Group)

	report, err := q.executeWithRetry(jobCtx, job)
	job.Report = report

	endTime := time.Now()
	job.CompletedAt = &endTime
	job.Duration = endTime.Sub(startTime)

	switch {
	case err == nil:
		job.Status = RunStatusCompleted
		slog.Info("Run completed", "run_id", job.ID, "duration", job.Duration, "attempts", job.Attempts)
	case jobCtx.Err() != nil:
		job.Status = RunStatusCanceled
		job.Error = err.Error()
		slog.Warn("Run canceled", "run_id", job.ID)
	default:
		job.Status = RunStatusFailed
		job.Error = err.Error()
		slog.Error("Run failed", "run_id", job.ID, "duration", job.Duration, "attempts", job.Attempts, "error", err)
	}

	q.mu.Lock()
	delete(q.active, job.ID)
	q.addToHistory(job)
	q.mu.Unlock()
}

// executeWithRetry retries the run while the failure is transient and the
// policy allows another attempt. Permanent failures return immediately.
func (q *RunQueue) executeWithRetry(ctx context.Context, job *RunJob) (*pipeline.RunReport, error) {
	q.mu.RLock()
	runner, policy := q.runner, q.policy
	q.mu.RUnlock()

	var report *pipeline.RunReport
	var err error

	for attempt := 1; ; attempt++ {
		job.Attempts = attempt
		report, err = runner.Execute(ctx, job.ID, job.Trigger)
		if err == nil {
			return report, nil
		}
		if ctx.Err() != nil {
			return report, err
		}
		if !apperrors.IsRetryable(err) {
			return report, err
		}

		retries := attempt // attempts beyond the first are retries
		if retries > policy.MaxRetries {
			q.recorder.IncRunRetryExhausted(string(failedStage(report)))
			slog.Warn("Transient failure but retries exhausted", "run_id", job.ID, "attempts", attempt)
			return report, err
		}

		delay := policy.Delay(retries)
		q.recorder.IncRunRetry(string(failedStage(report)))
		slog.Warn("Transient failure, retrying run",
			"run_id", job.ID, "attempt", attempt, "delay", delay, "error", err)
		q.sleep(delay)
	}
}

func failedStage(report *pipeline.RunReport) pipeline.StageName {
	if report == nil {
		return ""
	}
	return report.FailedStage()
}

func (q *RunQueue) addToHistory(job *RunJob) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}

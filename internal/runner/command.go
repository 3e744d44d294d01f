// Package runner executes the configured external test and build commands.
package runner

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// Step describes one external command invocation.
type Step struct {
	Name    string // "test" or "build"
	Command string // shell command line
	Dir     string // working directory
	Timeout time.Duration
}

// Result captures the outcome of an executed step.
type Result struct {
	Step     string
	ExitCode int
	Duration time.Duration
}

// Run executes the step's command under "bash -c" and streams its output to
// the structured log. A non-zero exit aborts the run (build category, not
// retryable); a missing shell or start failure is fatal.
func Run(ctx context.Context, step Step) (*Result, error) {
	if step.Command == "" {
		return &Result{Step: step.Name}, nil
	}

	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", step.Command) // #nosec G204 - command comes from the operator's config
	cmd.Dir = step.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryRuntime, apperrors.SeverityFatal, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryRuntime, apperrors.SeverityFatal, "failed to open stderr pipe")
	}

	start := time.Now()
	slog.Info("Running step command", "step", step.Name, "command", step.Command, "dir", step.Dir)

	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryRuntime, apperrors.SeverityFatal, "failed to start step command").
			WithContext("step", step.Name).
			WithContext("command", step.Command)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, step.Name, "stdout", stdout)
	go streamLines(&wg, step.Name, "stderr", stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	result := &Result{Step: step.Name, Duration: time.Since(start)}

	if waitErr == nil {
		slog.Info("Step completed", "step", step.Name, "duration", result.Duration)
		return result, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, apperrors.Wrap(ctx.Err(), apperrors.CategoryBuild, apperrors.SeverityError, "step timed out").
			WithContext("step", step.Name).
			WithContext("timeout", step.Timeout.String())
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, apperrors.Wrap(waitErr, apperrors.CategoryBuild, apperrors.SeverityError, "step command exited non-zero").
			WithContext("step", step.Name).
			WithContext("exit_code", result.ExitCode)
	}

	return result, apperrors.Wrap(waitErr, apperrors.CategoryRuntime, apperrors.SeverityFatal, "step command failed").
		WithContext("step", step.Name)
}

func streamLines(wg *sync.WaitGroup, step, stream string, r interface{ Read([]byte) (int, error) }) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Debug("Step output", "step", step, "stream", stream, "line", scanner.Text())
	}
}

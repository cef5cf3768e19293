// Package executor launches batch artifacts as child processes and classifies
// their outcome.
// This package is public and can be imported to add launchers for new artifact types.
package executor

import (
	"context"
	"errors"
	"time"

	"batch-agent/pkg/types"
)

// Executor builds the process invocation for one kind of artifact.
type Executor interface {
	// Name returns the executor name (e.g., "jar", "shell", "binary").
	Name() string

	// Command returns the argv that launches path with an optional parameter.
	Command(path, param string) []string

	// HealthCheck verifies the executor can launch programs on this host.
	HealthCheck(ctx context.Context) error
}

// Common errors.
var (
	ErrLaunch       = errors.New("program launch failed")
	ErrTimeout      = errors.New("program timed out")
	ErrOutputFormat = errors.New("program output format invalid")
)

// Task is one artifact invocation.
type Task struct {
	// Path is the artifact to execute.
	Path string

	// Param is an optional single argument.
	Param string
}

// Result is the outcome of running a Task.
type Result struct {
	// Status is SUCCESS or FAIL.
	Status types.StatusCode

	// Message is the human readable result text.
	Message string

	// StartedAt is captured right before the process is spawned.
	StartedAt time.Time

	// EndedAt is captured right after the output has been drained.
	EndedAt time.Time

	// ExitCode is the process exit code, -1 if the process never ran to completion.
	ExitCode int

	// Output is the raw combined stdout and stderr.
	Output []byte

	// Err classifies failures: ErrLaunch, ErrTimeout or ErrOutputFormat. Nil for
	// results whose status came from the program itself.
	Err error
}

// Success creates a successful result with a message.
func Success(msg string) Result {
	return Result{Status: types.StatusSuccess, Message: msg}
}

// Failure creates a failed result with a message and classifying error.
func Failure(msg string, err error) Result {
	return Result{Status: types.StatusFail, Message: msg, ExitCode: -1, Err: err}
}

// Apply copies the outcome onto a report item.
func (r Result) Apply(item *types.JobResultItem) {
	item.Status = r.Status
	item.Message = r.Message
	item.StartedAt = types.Millis(r.StartedAt)
	item.EndedAt = types.Millis(r.EndedAt)
}

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"batch-agent/pkg/types"
)

// FormatErrorMessage is reported when a program's output has no flag separator.
const FormatErrorMessage = `invalid batch program output: expected "<flag>,<message>"`

// defaultWaitDelay bounds how long output draining may continue after a timed
// out process has been killed.
const defaultWaitDelay = 5 * time.Second

// Runner executes artifacts and classifies their combined output.
type Runner struct {
	registry  *Registry
	timeout   time.Duration
	waitDelay time.Duration
}

// NewRunner creates a runner. A zero timeout lets programs run until their
// output stream closes.
func NewRunner(registry *Registry, timeout time.Duration) *Runner {
	return &Runner{
		registry:  registry,
		timeout:   timeout,
		waitDelay: defaultWaitDelay,
	}
}

// Validate checks that a task can be launched at all.
func (r *Runner) Validate(task Task) error {
	if strings.TrimSpace(task.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrLaunch)
	}
	return nil
}

// Run launches the task and blocks until its output is drained or the
// timeout expires. It never returns an error: every failure is a FAIL result.
func (r *Runner) Run(ctx context.Context, task Task) Result {
	start := time.Now()
	if err := r.Validate(task); err != nil {
		res := Failure(launchMessage(err), err)
		res.StartedAt, res.EndedAt = start, time.Now()
		return res
	}

	exe := r.registry.Resolve(task.Path)
	argv := exe.Command(task.Path, task.Param)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if r.timeout > 0 {
		cmd.WaitDelay = r.waitDelay
	}

	log.Debug().
		Str("executor", exe.Name()).
		Strs("argv", argv).
		Msg("launching program")

	start = time.Now()
	err := cmd.Run()
	end := time.Now()

	res := r.classify(ctx, cmd, out.Bytes(), err)
	res.StartedAt, res.EndedAt = start, end
	res.Output = out.Bytes()
	return res
}

func (r *Runner) classify(ctx context.Context, cmd *exec.Cmd, output []byte, err error) Result {
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure(fmt.Sprintf("[timed out] program exceeded %s", r.timeout), ErrTimeout)
		}
		if ctx.Err() != nil {
			return Failure(launchMessage(ctx.Err()), fmt.Errorf("%w: %v", ErrLaunch, ctx.Err()))
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && cmd.ProcessState == nil {
			return Failure(launchMessage(err), fmt.Errorf("%w: %v", ErrLaunch, err))
		}
	}

	status, msg, perr := ParseOutput(output)
	res := Result{Status: status, Message: msg, Err: perr}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res
}

// ParseOutput classifies program output. Line terminators are removed so the
// output reads as one logical line, which is split at the first comma into a
// status flag and a message. Flag "1" is SUCCESS, anything else is FAIL.
func ParseOutput(output []byte) (types.StatusCode, string, error) {
	line := lineJoiner.Replace(string(output))
	flag, msg, ok := strings.Cut(line, ",")
	if !ok {
		return types.StatusFail, FormatErrorMessage, ErrOutputFormat
	}
	if flag == "1" {
		return types.StatusSuccess, msg, nil
	}
	return types.StatusFail, msg, nil
}

var lineJoiner = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

func launchMessage(err error) string {
	return "[launch failed] " + err.Error()
}

package cmdrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"retriever/internal/logging"
	"retriever/internal/services"
)

// killGrace is how long a process group gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

// Command describes one subprocess invocation.
type Command struct {
	Binary  string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// OnLine receives each stdout and stderr line as it is produced.
	OnLine func(string)
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Output is the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Combined joins stderr and stdout for classification.
func (o Output) Combined() string {
	return strings.TrimSpace(o.Stderr + "\n" + o.Stdout)
}

// Runner executes commands. Tests substitute scripted runners.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	Logger *slog.Logger
}

// ErrTimeout is returned when the per-call timeout expires.
var ErrTimeout = errors.New("command timed out")

// Run starts cmd in its own process group and waits for it. A non-zero exit
// returns an *exec.ExitError alongside the captured output. Timeouts return an
// error wrapping ErrTimeout and services.ErrNetwork; caller cancellation
// returns an error wrapping context.Canceled.
func (e Exec) Run(ctx context.Context, cmd Command) (Output, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...) //nolint:gosec
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(proc.Environ(), cmd.Env...)
	}
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		return killGroup(proc, unix.SIGTERM)
	}
	proc.WaitDelay = killGrace

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return Output{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return Output{}, fmt.Errorf("stderr pipe: %w", err)
	}

	started := time.Now()
	logger.Debug("starting command",
		logging.Event("command_start"),
		logging.String("command", cmd.String()),
	)
	if err := proc.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return Output{}, services.WithHint(
				services.Wrap(services.ErrInternal, "", "start", fmt.Sprintf("%s is not installed", cmd.Binary), err),
				fmt.Sprintf("install %s or disable the backend", cmd.Binary),
			)
		}
		return Output{}, fmt.Errorf("start command: %w", err)
	}

	var (
		outBuf, errBuf bytes.Buffer
		lineMu         sync.Mutex
		wg             sync.WaitGroup
	)
	forward := func(line string) {
		if cmd.OnLine == nil {
			return
		}
		lineMu.Lock()
		defer lineMu.Unlock()
		cmd.OnLine(line)
	}
	scan := func(r io.Reader, buf *bytes.Buffer) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			buf.WriteString(line)
			buf.WriteByte('\n')
			forward(line)
		}
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go scan(stdout, &outBuf)
	go scan(stderr, &errBuf)
	wg.Wait()

	waitErr := proc.Wait()
	out := Output{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: proc.ProcessState.ExitCode(),
		Duration: time.Since(started),
	}
	logger.Debug("command finished",
		logging.Event("command_finish"),
		logging.String("command", cmd.String()),
		logging.Int("exit_code", out.ExitCode),
		logging.Duration("duration", out.Duration),
	)

	// Make sure nothing in the group outlives the call.
	_ = killGroup(proc, unix.SIGKILL)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return out, fmt.Errorf("%s interrupted: %w", cmd.Binary, context.Cause(ctx))
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, services.Wrap(services.ErrNetwork, "", cmd.Binary, fmt.Sprintf("no result after %s", cmd.Timeout), ErrTimeout)
	case waitErr != nil:
		return out, waitErr
	}
	return out, nil
}

func killGroup(proc *exec.Cmd, sig unix.Signal) error {
	if proc.Process == nil {
		return nil
	}
	err := unix.Kill(-proc.Process.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Output, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Output, error) {
	return f(ctx, cmd)
}

package assembly

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Stream names the output stream a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// LineFunc receives each output line as soon as the child writes it.
// Calls are serialized.
type LineFunc func(stream Stream, line string)

// Result is how a child process ended.
type Result struct {
	ExitCode int    // -1 when the process did not exit normally
	Signal   string // set when a signal terminated the process
}

// Success reports a zero exit code.
func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Signal == ""
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onLine LineFunc) (Result, error)
}

// maximum line length accepted from a child before the scanner gives up
const maxLineBytes = 1 << 20

// ExecRunner runs commands with os/exec and streams their output line by line.
type ExecRunner struct {
	Logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Logger: logger}
}

// Run starts name with args and blocks until both output streams are drained
// and the process has been reaped. A non-nil error means the process could
// not be started or its output could not be read.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, onLine LineFunc) (res Result, err error) {
	start := time.Now()
	cmdLine := strings.Join(append([]string{name}, args...), " ")
	r.Logger.Debug("running command", "cmd_line", cmdLine)

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		r.Logger.Error("exec start failed", "cmd", name, "error", err)
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", name, err)
	}
	defer func() {
		// never leave a child behind, whatever path we leave by
		if cmd.ProcessState == nil {
			if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				r.Logger.Warn("exec kill failed", "cmd", name, "error", kerr)
			}
			_ = cmd.Wait()
		}
	}()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		readErr error
	)
	emit := func(stream Stream, line string) {
		mu.Lock()
		defer mu.Unlock()
		if onLine != nil {
			onLine(stream, line)
		}
	}
	scan := func(stream Stream, rc io.Reader) {
		defer wg.Done()
		sc := bufio.NewScanner(rc)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			emit(stream, sc.Text())
		}
		if serr := sc.Err(); serr != nil {
			mu.Lock()
			if readErr == nil {
				readErr = fmt.Errorf("read %s: %w", stream, serr)
			}
			mu.Unlock()
			// keep draining so the child never blocks on a full pipe
			_, _ = io.Copy(io.Discard, rc)
		}
	}
	wg.Add(2)
	go scan(Stdout, stdout)
	go scan(Stderr, stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	res = resultOf(cmd.ProcessState)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.Logger.Error("exec wait failed", "cmd", name, "error", waitErr)
		return res, fmt.Errorf("wait %s: %w", name, waitErr)
	}

	r.Logger.Debug("exec done",
		"cmd", name,
		"exit_code", res.ExitCode,
		"signal", res.Signal,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, readErr
}

func resultOf(ps *os.ProcessState) Result {
	if ps == nil {
		return Result{ExitCode: -1}
	}
	res := Result{ExitCode: ps.ExitCode()}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		res.Signal = ws.Signal().String()
	}
	return res
}

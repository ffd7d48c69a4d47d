package assembly

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

type line struct {
	stream Stream
	text   string
}

func TestExecRunnerStreamsLines(t *testing.T) {
	requireShell(t)
	var got []line
	res, err := NewExecRunner(discardLogger()).Run(context.Background(), "sh",
		[]string{"-c", "echo one; echo two >&2; echo three"},
		func(s Stream, l string) { got = append(got, line{s, l}) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success() {
		t.Fatalf("Run() result = %+v, want success", res)
	}

	var stdout, stderr []string
	for _, l := range got {
		if l.stream == Stdout {
			stdout = append(stdout, l.text)
		} else {
			stderr = append(stderr, l.text)
		}
	}
	if len(stdout) != 2 || stdout[0] != "one" || stdout[1] != "three" {
		t.Errorf("stdout lines = %v", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "two" {
		t.Errorf("stderr lines = %v", stderr)
	}
}

func TestExecRunnerExitCode(t *testing.T) {
	requireShell(t)
	res, err := NewExecRunner(discardLogger()).Run(context.Background(), "sh", []string{"-c", "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 || res.Success() {
		t.Fatalf("Run() result = %+v, want exit code 3", res)
	}
}

func TestExecRunnerSignal(t *testing.T) {
	requireShell(t)
	res, err := NewExecRunner(discardLogger()).Run(context.Background(), "sh", []string{"-c", "kill -TERM $$"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Signal == "" || res.Success() {
		t.Fatalf("Run() result = %+v, want signal termination", res)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := NewExecRunner(discardLogger()).Run(context.Background(), "pagescribe-no-such-binary", nil, nil)
	if err == nil {
		t.Fatal("Run() expected error for a missing binary")
	}
}

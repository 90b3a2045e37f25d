package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out to sh -c.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// CommandError reports a command that exited non-zero.
type CommandError struct {
	Command  string
	Dir      string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q in %s exited with code %d", e.Command, e.Dir, e.ExitCode)
	if tail := lastLines(e.Stderr, 20); tail != "" {
		msg += ":\n" + tail
	}
	return msg
}

// RunChecked runs command and turns a non-zero exit into a *CommandError.
// It returns the command's stdout.
func RunChecked(ctx context.Context, r CommandRunner, dir, command string) (string, error) {
	stdout, stderr, code, err := r.Run(ctx, dir, command)
	if err != nil {
		return stdout, fmt.Errorf("run %q: %w", command, err)
	}
	if code != 0 {
		return stdout, &CommandError{Command: command, Dir: dir, ExitCode: code, Stderr: stderr}
	}
	return stdout, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

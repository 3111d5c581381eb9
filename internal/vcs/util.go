package vcs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// Command describes one git invocation.
type Command struct {
	// Op names the operation for error messages.
	Op string
	// Dir is the working directory.
	Dir string
	// Args are passed to the binary.
	Args []string
	// Env is appended to the current environment.
	Env []string
	// Stdin is fed to the process when set.
	Stdin string
	// Timeout bounds the call; zero means DefaultTimeout.
	Timeout time.Duration
}

// ExecContext executes a VCS command with timeout and context support.
// Stdout is returned on success. On failure the error is an *Error
// carrying stderr (or stdout when stderr is empty).
//
// Example:
//
//	output, err := ExecContext(ctx, "git", Command{Op: "status", Dir: root, Args: []string{"status", "--porcelain"}})
func ExecContext(ctx context.Context, name string, c Command) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	// Capture output
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	output := stderr.String()
	if strings.TrimSpace(output) == "" {
		output = stdout.String()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, NewError(c.Op, c.Args, output, ErrTimeout)
	case errors.Is(err, exec.ErrNotFound):
		return nil, NewError(c.Op, c.Args, output, ErrVCSNotAvailable)
	default:
		return nil, NewError(c.Op, c.Args, output, ErrCommandFailed)
	}
}

// ExecLines executes a command and returns the output as lines.
// Empty lines are filtered out.
func ExecLines(ctx context.Context, name string, c Command) ([]string, error) {
	output, err := ExecContext(ctx, name, c)
	if err != nil {
		return nil, err
	}

	return ParseLines(output), nil
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines splits command output into non-empty lines.
// This is a common pattern for parsing VCS command output.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// ===================
// Error Utilities
// ===================

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrVCS) {
//	    // abandon this iteration, the next poll retries
//	}
var (
	// ErrVCS is the root of every repository failure.
	ErrVCS = errors.New("vcs error")

	// ErrNotInVCS is returned when the working tree is not a git
	// repository.
	ErrNotInVCS = fmt.Errorf("%w: not in a git repository", ErrVCS)

	// ErrVCSNotAvailable is returned when the git binary is not installed
	// or not in PATH.
	ErrVCSNotAvailable = fmt.Errorf("%w: git binary not available", ErrVCS)

	// ErrCommandFailed is returned when git exits non-zero.
	ErrCommandFailed = fmt.Errorf("%w: command failed", ErrVCS)

	// ErrTimeout is returned when a git invocation exceeds its timeout.
	ErrTimeout = fmt.Errorf("%w: operation timed out", ErrVCS)

	// ErrPushRejected is returned when a push is rejected by the remote,
	// typically due to non-fast-forward updates.
	ErrPushRejected = fmt.Errorf("%w: push rejected by remote", ErrVCS)

	// ErrConflicts is returned when a pull cannot complete due to
	// conflicting changes.
	ErrConflicts = fmt.Errorf("%w: unresolved conflicts", ErrVCS)

	// ErrPatchRejected is returned when a patch does not apply cleanly.
	ErrPatchRejected = fmt.Errorf("%w: patch does not apply", ErrVCS)

	// ErrEmptyHistory is returned when a listing yields no commits.
	ErrEmptyHistory = fmt.Errorf("%w: no commits", ErrVCS)
)

// Error describes a failed git invocation.
type Error struct {
	// Op is a short name for the operation ("pull", "diff-tree").
	Op string
	// Args are the git arguments.
	Args []string
	// Output is the combined output, trimmed.
	Output string
	// Err is the classified cause, one of the sentinels above.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error, refining the cause from well-known git output.
func NewError(op string, args []string, output string, cause error) *Error {
	output = strings.TrimSpace(output)
	if cause == nil {
		cause = ErrCommandFailed
	}
	if errors.Is(cause, ErrCommandFailed) {
		switch {
		case strings.Contains(output, "non-fast-forward"), strings.Contains(output, "[rejected]"):
			cause = ErrPushRejected
		case strings.Contains(output, "CONFLICT"):
			cause = ErrConflicts
		case strings.Contains(output, "patch does not apply"), strings.Contains(output, "corrupt patch"):
			cause = ErrPatchRejected
		case strings.Contains(output, "not a git repository"):
			cause = ErrNotInVCS
		}
	}
	return &Error{Op: op, Args: args, Output: output, Err: cause}
}

// IsRetryable returns true if the error is likely to succeed on retry.
// This is useful for transient network errors or a remote that moved.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are often transient
	if errors.Is(err, ErrTimeout) {
		return true
	}

	// Push rejections might succeed after a pull
	if errors.Is(err, ErrPushRejected) {
		return true
	}

	return false
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Not in VCS means we can't do anything
	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	return false
}

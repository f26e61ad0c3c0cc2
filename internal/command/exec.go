// Package command runs external tool command lines and classifies their
// output.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result is the outcome of one external command.
type Result struct {
	ExitCode int
	Output   []byte // combined stdout+stderr
}

// Execer runs a shell command line and captures its combined output.
// A non-nil error means the command could not be run at all (not found,
// fork failure); a command that ran and exited nonzero is reported
// through Result.ExitCode, not the error.
type Execer interface {
	Exec(ctx context.Context, cmdline string) (Result, error)
}

// Shell runs command lines through /bin/sh -c.
type Shell struct{}

// Exec runs cmdline and returns its combined output and exit code.
func (Shell) Exec(ctx context.Context, cmdline string) (Result, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
		}
		return Result{ExitCode: -1, Output: out}, err
	}
	return Result{ExitCode: 0, Output: out}, nil
}

// failureMarkers are substrings several wrapped tools print on failure
// while still exiting zero.
var failureMarkers = []string{"error", "exception", "failed"}

// LooksLikeFailure reports whether combined output contains an
// error-indicating substring, case-insensitively. This is a deliberately
// conservative heuristic layered on top of exit-code checking: a benign
// mention of one of the marker words misclassifies the run, which is
// accepted in exchange for catching tools that fail on a zero exit.
func LooksLikeFailure(output []byte) bool {
	lower := strings.ToLower(string(output))
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// LastLines returns up to n trailing non-blank lines of output joined by
// newlines, for use as a compact error message.
func LastLines(output []byte, n int) string {
	trimmed := bytes.TrimRight(output, "\n\r \t")
	if len(trimmed) == 0 {
		return ""
	}
	lines := strings.Split(string(trimmed), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return strings.Join(lines, "\n")
}

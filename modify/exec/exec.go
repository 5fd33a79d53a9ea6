// Package exec runs the external mutator command.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	oe "os/exec"
	"strings"
)

// Runner starts a command and waits for it. The error is
// reserved for failures to start or wait; a command that
// ran and exited nonzero reports it through the code.
type Runner interface {
	Run(
		ctx context.Context,
		argv []string,
		dir string,
	) (int, error)
}

// OSRunner runs commands as child processes sharing the
// caller's stdin, stdout and stderr, so interactive editors
// work. There is no timeout.
type OSRunner struct{}

var _ Runner = OSRunner{}

// Run executes argv[0] with argv[1:] in dir. No shell is
// involved.
func (OSRunner) Run(
	ctx context.Context,
	argv []string,
	dir string,
) (int, error) {
	const errCtx = "running command"

	if len(argv) == 0 {
		return 0, fmt.Errorf("%s: empty command", errCtx)
	}

	//nolint:gosec // the command is the user's mutator
	cmd := oe.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()

	var exitErr *oe.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if err != nil {
		return 0, fmt.Errorf(
			"%s: %s: %w", errCtx, argv[0], err,
		)
	}

	return 0, nil
}

// MutationFailedError is returned by Mutate when the
// mutator exits nonzero.
type MutationFailedError struct {
	Command  []string
	ExitCode int
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf(
		"command %q exited with status %d",
		strings.Join(e.Command, " "), e.ExitCode,
	)
}

// Mutate runs command with paths appended as trailing
// arguments, in dir.
func Mutate(
	ctx context.Context,
	runner Runner,
	command []string,
	dir string,
	paths []string,
) error {
	const errCtx = "running mutator"

	argv := make([]string, 0, len(command)+len(paths))
	argv = append(argv, command...)
	argv = append(argv, paths...)

	slog.Info(
		"executing",
		"cmd", strings.Join(command, " "),
		"files", strings.Join(paths, " "),
		"dir", dir,
	)

	code, err := runner.Run(ctx, argv, dir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if code != 0 {
		return &MutationFailedError{
			Command:  command,
			ExitCode: code,
		}
	}

	return nil
}

// Package command runs the external programs of exec units.
package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Spec describes one program invocation.
type Spec struct {
	Command string
	Args    []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env entries ("KEY=value") are added to the inherited environment.
	Env []string
}

// Result holds the outcome of a finished program.
type Result struct {
	Stdout string
	Stderr string
	// ExitCode is -1 when the program could not be started or was killed
	// because ctx ended.
	ExitCode int
}

// Runner runs external programs.
type Runner interface {
	// Run starts spec and waits for it. A non-zero exit status is reported in
	// Result.ExitCode with a nil error; the error is reserved for programs that
	// could not run to completion.
	Run(ctx context.Context, spec Spec) (*Result, error)
}

type defaultRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() Runner {
	return defaultRunner{}
}

func (defaultRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	err := cmd.Run()
	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: -1,
	}
	if err == nil {
		result.ExitCode = 0
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, nil
	}
	return result, err
}

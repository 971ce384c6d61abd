//go:build !windows

package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/gxo-labs/txinstall/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	res, err := command.NewRunner().Run(context.Background(), command.Spec{
		Command: "sh",
		Args:    []string{"-c", `echo "$GREETING from $(pwd)"; echo oops >&2`},
		Dir:     dir,
		Env:     []string{"GREETING=hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hello from ")
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRun_NonZeroExit(t *testing.T) {
	res, err := command.NewRunner().Run(context.Background(), command.Spec{Command: "sh", Args: []string{"-c", "exit 7"}})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRun_NotFound(t *testing.T) {
	res, err := command.NewRunner().Run(context.Background(), command.Spec{Command: "/definitely/not/a/program"})
	assert.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := command.NewRunner().Run(ctx, command.Spec{Command: "sleep", Args: []string{"5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
}

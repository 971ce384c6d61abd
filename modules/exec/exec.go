// Package exec provides the "exec" unit, which runs a configured program in
// each lifecycle phase.
package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gxo-labs/txinstall/internal/command"
	"github.com/gxo-labs/txinstall/internal/logger"
	"github.com/gxo-labs/txinstall/internal/paramutil"
	"github.com/gxo-labs/txinstall/internal/registry"
	"github.com/gxo-labs/txinstall/internal/retry"
	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/internal/template"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

func init() {
	registry.Register("exec", NewUnit)
}

// Step is the program run in one phase.
type Step struct {
	Command string   `param:"command"`
	Args    []string `param:"args"`
	Dir     string   `param:"dir"`
	Env     []string `param:"env"`
}

// RetryConfig controls repeated attempts of a failing step.
type RetryConfig struct {
	Attempts int           `param:"attempts"`
	Delay    time.Duration `param:"delay"`
	MaxDelay time.Duration `param:"max_delay"`
	Backoff  float64       `param:"backoff"`
}

// Config holds the unit's params. Every step is optional.
type Config struct {
	Install   *Step         `param:"install"`
	Commit    *Step         `param:"commit"`
	Rollback  *Step         `param:"rollback"`
	Uninstall *Step         `param:"uninstall"`
	Retry     *RetryConfig  `param:"retry"`
	Timeout   time.Duration `param:"timeout"`
}

// Unit runs external programs.
type Unit struct {
	*installer.Node
	cfg     Config
	runner  command.Runner
	tracker *secrets.SecretTracker
}

// NewUnit is the registry factory.
func NewUnit() installer.Installer {
	u := &Unit{Node: installer.NewNode(), runner: command.NewRunner()}
	u.Bind(u)
	return u
}

// Configure implements plugin.Configurable.
func (u *Unit) Configure(params map[string]interface{}) error {
	u.tracker = secrets.FromParams(params)
	if err := paramutil.Decode(params, &u.cfg); err != nil {
		return err
	}
	for phase, step := range u.steps() {
		if step != nil && step.Command == "" {
			return fmt.Errorf("%s step has no command", phase)
		}
	}
	return nil
}

func (u *Unit) steps() map[installer.Phase]*Step {
	return map[installer.Phase]*Step{
		installer.PhaseInstall:   u.cfg.Install,
		installer.PhaseCommit:    u.cfg.Commit,
		installer.PhaseRollback:  u.cfg.Rollback,
		installer.PhaseUninstall: u.cfg.Uninstall,
	}
}

// Install runs the install step and records its command line and exit code.
func (u *Unit) Install(ctx context.Context, stateSaver state.Map) error {
	return u.run(ctx, installer.PhaseInstall, u.cfg.Install, stateSaver)
}

// Commit runs the commit step.
func (u *Unit) Commit(ctx context.Context, savedState state.Map) error {
	return u.run(ctx, installer.PhaseCommit, u.cfg.Commit, savedState)
}

// Rollback runs the rollback step.
func (u *Unit) Rollback(ctx context.Context, savedState state.Map) error {
	return u.run(ctx, installer.PhaseRollback, u.cfg.Rollback, savedState)
}

// Uninstall runs the uninstall step.
func (u *Unit) Uninstall(ctx context.Context, savedState state.Map) error {
	return u.run(ctx, installer.PhaseUninstall, u.cfg.Uninstall, savedState)
}

// run executes step, retrying per the retry config. The exit code is stored
// in m under "<phase>ExitCode" when m is not nil. Tracked secrets never reach
// the install log or m.
func (u *Unit) run(ctx context.Context, phase installer.Phase, step *Step, m state.Map) error {
	if step == nil {
		return nil
	}
	line := u.tracker.Mask(strings.Join(append([]string{step.Command}, step.Args...), " "))
	u.LogMessage(fmt.Sprintf("Running %s command: %s", phase, line))

	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}

	helper := retry.NewHelper(u.logger())
	helper.SetRedactor(u.tracker.Mask)

	exitCode := -1
	err := helper.Do(ctx, u.retryConfig(phase), func(ctx context.Context) error {
		res, err := u.runner.Run(ctx, command.Spec{Command: step.Command, Args: step.Args, Dir: step.Dir, Env: step.Env})
		if res != nil {
			exitCode = res.ExitCode
		}
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%s exited with status %d: %s", step.Command, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		return nil
	})

	if m != nil {
		m[string(phase)+"ExitCode"] = exitCode
		recorded, _ := template.RedactTrackedSecrets(append([]string{step.Command}, step.Args...), u.tracker)
		m[string(phase)+"Command"] = recorded
	}
	if err != nil {
		return fmt.Errorf("%s command failed: %w", phase, err)
	}
	return nil
}

func (u *Unit) retryConfig(phase installer.Phase) retry.Config {
	cfg := retry.Config{Attempts: 1, Name: fmt.Sprintf("%s %s", u.DisplayName(), phase)}
	if r := u.cfg.Retry; r != nil {
		cfg.Attempts = r.Attempts
		cfg.Delay = r.Delay
		cfg.MaxDelay = r.MaxDelay
		cfg.BackoffFactor = r.Backoff
	}
	return cfg
}

func (u *Unit) logger() txlog.Logger {
	if ic := u.Context(); ic != nil {
		return ic.Logger()
	}
	return logger.NewDiscardLogger()
}

// HelpText describes the params.
func (u *Unit) HelpText() string {
	return `exec unit params:
 install, commit, rollback, uninstall
         Program to run in that phase: command (required), args, dir, env.
 retry   attempts, delay, max_delay and backoff for failing commands.
 timeout Limit for each command, such as 30s.`
}

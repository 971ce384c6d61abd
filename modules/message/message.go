// Package message provides the "message" unit, which writes a line to the
// install log in the phases it is configured for.
package message

import (
	"context"
	"fmt"

	"github.com/gxo-labs/txinstall/internal/paramutil"
	"github.com/gxo-labs/txinstall/internal/registry"
	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

func init() {
	registry.Register("message", NewUnit)
}

// Config holds the unit's params.
type Config struct {
	Text string `param:"text"`
	// Phases limits the message to the named phases. Empty means all.
	Phases []string `param:"phases"`
}

// Unit logs Config.Text.
type Unit struct {
	*installer.Node
	cfg     Config
	phases  map[installer.Phase]bool
	tracker *secrets.SecretTracker
}

// NewUnit is the registry factory.
func NewUnit() installer.Installer {
	u := &Unit{Node: installer.NewNode()}
	u.Bind(u)
	return u
}

// Configure implements plugin.Configurable.
func (u *Unit) Configure(params map[string]interface{}) error {
	u.tracker = secrets.FromParams(params)
	if err := paramutil.CheckRequired(params, "text"); err != nil {
		return err
	}
	if err := paramutil.Decode(params, &u.cfg); err != nil {
		return err
	}
	u.phases = make(map[installer.Phase]bool, len(u.cfg.Phases))
	for _, name := range u.cfg.Phases {
		phase, ok := installer.ParsePhase(name)
		if !ok {
			return fmt.Errorf("unknown phase '%s'", name)
		}
		u.phases[phase] = true
	}
	return nil
}

func (u *Unit) say(phase installer.Phase, m state.Map) {
	if len(u.phases) > 0 && !u.phases[phase] {
		return
	}
	u.LogMessage(u.tracker.Mask(u.cfg.Text))
	if m != nil {
		m["shown"] = true
	}
}

// Install logs the message.
func (u *Unit) Install(_ context.Context, stateSaver state.Map) error {
	u.say(installer.PhaseInstall, stateSaver)
	return nil
}

// Commit logs the message.
func (u *Unit) Commit(_ context.Context, savedState state.Map) error {
	u.say(installer.PhaseCommit, savedState)
	return nil
}

// Rollback logs the message.
func (u *Unit) Rollback(_ context.Context, savedState state.Map) error {
	u.say(installer.PhaseRollback, savedState)
	return nil
}

// Uninstall logs the message.
func (u *Unit) Uninstall(_ context.Context, savedState state.Map) error {
	u.say(installer.PhaseUninstall, savedState)
	return nil
}

// HelpText describes the params.
func (u *Unit) HelpText() string {
	return `message unit params:
 text    Line to write to the install log (required).
 phases  Phases to write it in: install, commit, rollback, uninstall. Default all.`
}

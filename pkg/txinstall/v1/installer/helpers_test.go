package installer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

// callLog records lifecycle calls across units in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *callLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// artifactUnit creates a file on install and removes it on rollback and
// uninstall.
type artifactUnit struct {
	*installer.Node
	path string
	log  *callLog

	failInstall   bool
	failCommit    bool
	failRollback  bool
	failUninstall bool

	uninstallState []state.Map
}

func newArtifactUnit(name, path string, log *callLog) *artifactUnit {
	u := &artifactUnit{Node: installer.NewNode(), path: path, log: log}
	u.Name = name
	u.Bind(u)
	return u
}

func (u *artifactUnit) Install(_ context.Context, stateSaver state.Map) error {
	u.log.add("install:%s", u.Name)
	if u.failInstall {
		return errors.New("install of " + u.Name + " exploded")
	}
	if err := os.WriteFile(u.path, []byte(u.Name), 0o644); err != nil {
		return err
	}
	stateSaver["path"] = u.path
	return nil
}

func (u *artifactUnit) Commit(_ context.Context, savedState state.Map) error {
	u.log.add("commit:%s", u.Name)
	if u.failCommit {
		return errors.New("commit of " + u.Name + " exploded")
	}
	savedState["committed"] = true
	return nil
}

func (u *artifactUnit) Rollback(_ context.Context, savedState state.Map) error {
	u.log.add("rollback:%s", u.Name)
	if u.failRollback {
		return errors.New("rollback of " + u.Name + " exploded")
	}
	if p, ok := savedState.GetString("path"); ok {
		return removeIfExists(p)
	}
	return nil
}

func (u *artifactUnit) Uninstall(_ context.Context, savedState state.Map) error {
	u.log.add("uninstall:%s", u.Name)
	u.uninstallState = append(u.uninstallState, savedState)
	if u.failUninstall {
		return errors.New("uninstall of " + u.Name + " exploded")
	}
	return removeIfExists(u.path)
}

func (u *artifactUnit) HelpText() string {
	return "Help for " + u.Name
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// newUnits creates n artifact units writing into dir.
func newUnits(dir string, log *callLog, n int) []*artifactUnit {
	units := make([]*artifactUnit, n)
	for i := range units {
		name := fmt.Sprintf("unit%d", i)
		units[i] = newArtifactUnit(name, filepath.Join(dir, name+".txt"), log)
	}
	return units
}

func asInstallers(units []*artifactUnit) []installer.Installer {
	out := make([]installer.Installer, len(units))
	for i, u := range units {
		out[i] = u
	}
	return out
}

func factoriesFor(units []*artifactUnit) []installer.Factory {
	out := make([]installer.Factory, len(units))
	for i := range units {
		u := units[i]
		out[i] = func() (installer.Installer, error) { return u, nil }
	}
	return out
}

// recordingBus keeps every emitted event.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Emit(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) ofType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// quietContext returns a context that writes console output into a buffer.
func quietContext(args ...string) (*installer.InstallContext, *bytes.Buffer) {
	var console bytes.Buffer
	return installer.NewInstallContext("", args, installer.WithConsole(&console)), &console
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

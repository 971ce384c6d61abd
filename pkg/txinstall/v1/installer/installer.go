// Package installer implements the transactional installer engine: a tree of
// installer nodes driven through install, commit, rollback and uninstall, the
// install context shared by the tree, the transacted root that turns a failed
// install into a rollback, and the component wrapper that keeps a node's state
// in a file between process invocations.
//
// Lifecycle calls run synchronously and depth first. Children are installed and
// committed in ascending order and rolled back or uninstalled in descending
// order. The context.Context passed to each call carries tracing spans only;
// a started lifecycle call always runs to completion.
//
// A component's state file is not locked. Running several invocations against
// the same state path at once is undefined behavior.
package installer

import (
	"context"
	"sort"
	"strings"

	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

// Phase names one of the four lifecycle operations.
type Phase string

const (
	PhaseInstall   Phase = "install"
	PhaseCommit    Phase = "commit"
	PhaseRollback  Phase = "rollback"
	PhaseUninstall Phase = "uninstall"
)

// ParsePhase converts a case-insensitive action name into a Phase.
func ParsePhase(s string) (Phase, bool) {
	switch Phase(strings.ToLower(s)) {
	case PhaseInstall:
		return PhaseInstall, true
	case PhaseCommit:
		return PhaseCommit, true
	case PhaseRollback:
		return PhaseRollback, true
	case PhaseUninstall:
		return PhaseUninstall, true
	}
	return "", false
}

// Installer is the capability every node in an installer tree exposes.
//
// Concrete units embed *Node and override the lifecycle methods they need.
// An override that wants its children to run calls the embedded Node method
// (for example n.Node.Install(ctx, stateSaver)). Base returns that embedded
// node, which carries the tree links and hooks.
type Installer interface {
	// Install performs the unit's work and records what it did into stateSaver.
	Install(ctx context.Context, stateSaver state.Map) error
	// Commit finalizes a successful install using the map Install produced.
	Commit(ctx context.Context, savedState state.Map) error
	// Rollback reverses an install using the map Install produced.
	Rollback(ctx context.Context, savedState state.Map) error
	// Uninstall removes a previously committed install. savedState may be nil.
	Uninstall(ctx context.Context, savedState state.Map) error
	// HelpText describes the unit's parameters, including its children.
	HelpText() string
	// Base returns the node that holds the installer's tree links.
	Base() *Node
}

// Factory instantiates one installable unit.
type Factory func() (Installer, error)

// Discoverer finds the installable units of a component. source identifies the
// component, usually the path of its manifest.
type Discoverer interface {
	Discover(ctx context.Context, source string) ([]Factory, error)
}

// DiscovererFunc adapts a function to the Discoverer interface.
type DiscovererFunc func(ctx context.Context, source string) ([]Factory, error)

// Discover calls f.
func (f DiscovererFunc) Discover(ctx context.Context, source string) ([]Factory, error) {
	return f(ctx, source)
}

// StaticDiscoverer returns a fixed list of factories per source. Sources
// without an entry yield no units.
type StaticDiscoverer map[string][]Factory

// Discover returns the factories registered for source.
func (s StaticDiscoverer) Discover(_ context.Context, source string) ([]Factory, error) {
	return s[source], nil
}

// Sources lists the sources known to the discoverer in sorted order.
func (s StaticDiscoverer) Sources() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

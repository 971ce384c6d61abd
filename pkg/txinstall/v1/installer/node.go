package installer

import (
	"context"
	"fmt"
	"strings"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
	"go.opentelemetry.io/otel/attribute"
)

// Node is the composable installer. On its own it installs, commits, rolls
// back and uninstalls its children and records their State Maps under the
// reserved keys. Units embed *Node and override the phases they implement.
type Node struct {
	// Name is used in log lines, events and spans. Defaults to the Go type
	// of the installer that owns this node.
	Name string

	context    *InstallContext
	installers *Collection
	parent     *Node
	self       Installer
	hooks      map[HookName][]HookFunc
}

// NewNode creates an empty composite installer.
func NewNode() *Node {
	n := &Node{}
	n.self = n
	return n
}

// Bind records inst as the installer that embeds n so that the node reports
// the embedding type's name and dispatches to it when used as a tree root.
// Unit constructors call it; adding the unit to a Collection does the same.
func (n *Node) Bind(inst Installer) {
	n.self = inst
}

// Base returns n.
func (n *Node) Base() *Node { return n }

// DisplayName returns Name, or the Go type of the installer embedding n.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if n.self != nil {
		return fmt.Sprintf("%T", n.self)
	}
	return fmt.Sprintf("%T", n)
}

// Context returns the install context last assigned to the node.
func (n *Node) Context() *InstallContext { return n.context }

// SetContext replaces the node's install context. Composite phases assign
// their own context to every child before iterating.
func (n *Node) SetContext(ic *InstallContext) { n.context = ic }

// Installers returns the children owned by n.
func (n *Node) Installers() *Collection {
	if n.installers == nil {
		n.installers = newCollection(n)
	}
	return n.installers
}

// Parent returns the node whose collection holds n, or nil.
func (n *Node) Parent() *Node { return n.parent }

// SetParent moves n into the collection of parent. A nil parent detaches n.
func (n *Node) SetParent(parent *Node) error {
	if parent == n {
		return txerrors.NewTreeError(fmt.Sprintf("'%s' cannot be its own parent", n.DisplayName()))
	}
	if parent == n.parent {
		return nil
	}
	if parent == nil {
		n.parent.Installers().detach(n)
		return nil
	}
	inst := n.self
	if inst == nil {
		inst = n
	}
	return parent.Installers().Add(inst)
}

// TreeContains reports whether target is a descendant of n.
func (n *Node) TreeContains(target Installer) bool {
	if target == nil || n.installers == nil {
		return false
	}
	node := target.Base()
	for _, child := range n.installers.items {
		if child.Base() == node || child.Base().TreeContains(target) {
			return true
		}
	}
	return false
}

// HelpText concatenates the help of every child, one block per line.
func (n *Node) HelpText() string {
	var sb strings.Builder
	for _, child := range n.Installers().Items() {
		text := child.HelpText()
		if text == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// LogMessage writes message to the node's install context, creating a default
// context when none has been assigned.
func (n *Node) LogMessage(message string) {
	n.contextOrDefault().LogMessage(message)
}

func (n *Node) contextOrDefault() *InstallContext {
	if n.context == nil {
		n.context = NewDefaultContext()
	}
	return n.context
}

func (n *Node) propagateContext(children []Installer) {
	ic := n.contextOrDefault()
	for _, child := range children {
		child.Base().SetContext(ic)
	}
}

// invoke runs one lifecycle phase of a child inside a span.
func (n *Node) invoke(ctx context.Context, child Installer, index int, phase Phase, m state.Map) error {
	ctx, obs := beginPhase(ctx, n.contextOrDefault(), child.Base().DisplayName(), phase,
		attribute.String("installer.parent", n.DisplayName()),
		attribute.Int("installer.index", index))

	var err error
	switch phase {
	case PhaseInstall:
		err = child.Install(ctx, m)
	case PhaseCommit:
		err = child.Commit(ctx, m)
	case PhaseRollback:
		err = child.Rollback(ctx, m)
	case PhaseUninstall:
		err = child.Uninstall(ctx, m)
	}
	obs.end(err)
	return err
}

// Install installs every child in order. Each child gets a fresh State Map,
// and the maps of all attempted children are stored in stateSaver under
// NestedStatesKey together with LastAttemptedIndexKey. The reserved keys are
// written even when a child fails; the child's error is then returned as-is
// and the AfterInstall hooks do not run.
func (n *Node) Install(ctx context.Context, stateSaver state.Map) error {
	if stateSaver == nil {
		return txerrors.NewArgumentError("stateSaver cannot be nil", nil)
	}
	if err := n.fireHooks(ctx, BeforeInstall, stateSaver); err != nil {
		n.logHookError(BeforeInstall, err)
		return txerrors.NewBeforeInstallError(n.DisplayName(), err)
	}

	children := n.Installers().Items()
	n.propagateContext(children)

	lastAttempted := -1
	nested := make([]state.Map, 0, len(children))
	err := func() error {
		for i, child := range children {
			childState := state.Map{}
			lastAttempted = i
			err := func() error {
				defer func() { nested = append(nested, childState) }()
				return n.invoke(ctx, child, i, PhaseInstall, childState)
			}()
			if err != nil {
				return err
			}
		}
		return nil
	}()
	stateSaver[state.LastAttemptedIndexKey] = lastAttempted
	stateSaver[state.NestedStatesKey] = nested
	if err != nil {
		return err
	}

	if err := n.fireHooks(ctx, AfterInstall, stateSaver); err != nil {
		n.logHookError(AfterInstall, err)
		return txerrors.NewAfterInstallError(n.DisplayName(), err)
	}
	return nil
}

// Commit commits the attempted children in ascending order. Every child is
// attempted even after a failure; the last failure is returned. On return
// NestedStatesKey holds the children's maps and LastAttemptedIndexKey is gone.
func (n *Node) Commit(ctx context.Context, savedState state.Map) error {
	return n.replay(ctx, PhaseCommit, savedState)
}

// Rollback rolls back the attempted children in descending order, with the
// same error handling as Commit.
func (n *Node) Rollback(ctx context.Context, savedState state.Map) error {
	return n.replay(ctx, PhaseRollback, savedState)
}

func (n *Node) replay(ctx context.Context, phase Phase, savedState state.Map) error {
	lastAttempted, nested, err := reservedState(savedState)
	if err != nil {
		return err
	}

	before, after := BeforeCommit, AfterCommit
	if phase == PhaseRollback {
		before, after = BeforeRollback, AfterRollback
	}

	var recorded error
	if err := n.fireHooks(ctx, before, savedState); err != nil {
		recorded = n.recordPhaseError(phase, n.DisplayName(), txerrors.NewHookError(string(before), n.DisplayName(), err))
	}

	children := n.Installers().Items()
	if len(nested) != lastAttempted+1 || lastAttempted >= len(children) {
		return txerrors.NewCorruptStateError(fmt.Sprintf(
			"'%s' has %d nested states, last attempted index %d and %d children",
			n.DisplayName(), len(nested), lastAttempted, len(children)), nil)
	}
	n.propagateContext(children)

	step := func(i int) {
		if err := n.invoke(ctx, children[i], i, phase, nested[i]); err != nil {
			recorded = n.recordPhaseError(phase, children[i].Base().DisplayName(), err)
		}
	}
	if phase == PhaseCommit {
		for i := 0; i <= lastAttempted; i++ {
			step(i)
		}
	} else {
		for i := lastAttempted; i >= 0; i-- {
			step(i)
		}
	}

	savedState[state.NestedStatesKey] = nested
	if phase == PhaseCommit {
		delete(savedState, state.LastAttemptedIndexKey)
	}

	if err := n.fireHooks(ctx, after, savedState); err != nil {
		recorded = n.recordPhaseError(phase, n.DisplayName(), txerrors.NewHookError(string(after), n.DisplayName(), err))
	}
	return recorded
}

// Uninstall uninstalls every configured child in descending order. A nil
// savedState, or one without NestedStatesKey, gives each child a nil map.
// Failures are handled as in Commit.
func (n *Node) Uninstall(ctx context.Context, savedState state.Map) error {
	var recorded error
	if err := n.fireHooks(ctx, BeforeUninstall, savedState); err != nil {
		recorded = n.recordPhaseError(PhaseUninstall, n.DisplayName(), txerrors.NewHookError(string(BeforeUninstall), n.DisplayName(), err))
	}

	children := n.Installers().Items()
	var nested []state.Map
	if raw, ok := savedState.Get(state.NestedStatesKey); ok && raw != nil {
		maps, ok := asMaps(raw)
		if !ok {
			return txerrors.NewCorruptStateError(fmt.Sprintf("'%s' has a malformed %s entry of type %T", n.DisplayName(), state.NestedStatesKey, raw), nil)
		}
		if len(maps) != len(children) {
			return txerrors.NewCorruptStateError(fmt.Sprintf(
				"'%s' has %d nested states for %d children", n.DisplayName(), len(maps), len(children)), nil)
		}
		nested = maps
	} else {
		nested = make([]state.Map, len(children))
	}
	n.propagateContext(children)

	for i := len(children) - 1; i >= 0; i-- {
		if err := n.invoke(ctx, children[i], i, PhaseUninstall, nested[i]); err != nil {
			recorded = n.recordPhaseError(PhaseUninstall, children[i].Base().DisplayName(), err)
		}
	}

	if err := n.fireHooks(ctx, AfterUninstall, savedState); err != nil {
		recorded = n.recordPhaseError(PhaseUninstall, n.DisplayName(), txerrors.NewHookError(string(AfterUninstall), n.DisplayName(), err))
	}
	return recorded
}

func (n *Node) logHookError(hook HookName, err error) {
	ic := n.contextOrDefault()
	ic.LogMessage(fmt.Sprintf("Error: the %s callback of '%s' failed.", hook, n.DisplayName()))
	LogError(ic, err)
	ic.Logger().Errorf("%s hook of '%s' failed: %v", hook, n.DisplayName(), err)
}

// reservedState extracts and type-checks the reserved keys of savedState.
func reservedState(savedState state.Map) (int, []state.Map, error) {
	if savedState == nil {
		return 0, nil, txerrors.NewArgumentError("savedState cannot be nil", nil)
	}
	rawIndex, ok := savedState[state.LastAttemptedIndexKey]
	if !ok || rawIndex == nil {
		return 0, nil, txerrors.NewArgumentError(fmt.Sprintf("savedState is missing '%s'", state.LastAttemptedIndexKey), nil)
	}
	rawNested, ok := savedState[state.NestedStatesKey]
	if !ok || rawNested == nil {
		return 0, nil, txerrors.NewArgumentError(fmt.Sprintf("savedState is missing '%s'", state.NestedStatesKey), nil)
	}
	index, ok := savedState.GetInt(state.LastAttemptedIndexKey)
	if !ok {
		return 0, nil, txerrors.NewArgumentError(fmt.Sprintf("'%s' must be an integer, got %T", state.LastAttemptedIndexKey, rawIndex), nil)
	}
	nested, ok := asMaps(rawNested)
	if !ok {
		return 0, nil, txerrors.NewArgumentError(fmt.Sprintf("'%s' must be a list of state maps, got %T", state.NestedStatesKey, rawNested), nil)
	}
	return index, nested, nil
}

func asMaps(v interface{}) ([]state.Map, bool) {
	switch typed := v.(type) {
	case []state.Map:
		return typed, true
	case []interface{}:
		out := make([]state.Map, len(typed))
		for i, item := range typed {
			switch m := item.(type) {
			case nil:
			case state.Map:
				out[i] = m
			case map[string]interface{}:
				out[i] = state.Map(m)
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

var _ Installer = (*Node)(nil)

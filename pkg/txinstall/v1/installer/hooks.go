package installer

import (
	"context"

	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

// HookName identifies a notification point around a lifecycle phase.
type HookName string

const (
	BeforeInstall   HookName = "BeforeInstall"
	AfterInstall    HookName = "AfterInstall"
	BeforeCommit    HookName = "BeforeCommit"
	AfterCommit     HookName = "AfterCommit"
	BeforeRollback  HookName = "BeforeRollback"
	AfterRollback   HookName = "AfterRollback"
	BeforeUninstall HookName = "BeforeUninstall"
	AfterUninstall  HookName = "AfterUninstall"
)

// HookFunc is called with the node's State Map. Install hooks abort the
// install on error; commit, rollback and uninstall hooks have their errors
// recorded while the phase carries on.
type HookFunc func(ctx context.Context, savedState state.Map) error

// AddHook appends fn to the callbacks of hook. Callbacks run in the order
// they were added.
func (n *Node) AddHook(hook HookName, fn HookFunc) {
	if fn == nil {
		return
	}
	if n.hooks == nil {
		n.hooks = make(map[HookName][]HookFunc)
	}
	n.hooks[hook] = append(n.hooks[hook], fn)
}

// fireHooks runs the callbacks of hook and stops at the first error.
func (n *Node) fireHooks(ctx context.Context, hook HookName, m state.Map) error {
	for _, fn := range n.hooks[hook] {
		if err := fn(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

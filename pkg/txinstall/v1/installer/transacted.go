package installer

import (
	"context"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

// Transacted is the root of an installer tree. Its Install runs the install
// phase of every child and then either commits all of them or, if anything
// failed, rolls all of them back.
type Transacted struct {
	*Node
}

// NewTransacted creates an empty transacted root.
func NewTransacted() *Transacted {
	t := &Transacted{Node: NewNode()}
	t.Name = "TransactedInstaller"
	t.Bind(t)
	return t
}

// Install installs the tree into stateSaver. When the install phase fails
// the tree is rolled back with the partially filled stateSaver and an
// InstallAbortedError wrapping the install failure is returned; a rollback
// failure is logged and otherwise ignored. When the install phase succeeds
// the tree is committed and a commit failure is returned unchanged.
func (t *Transacted) Install(ctx context.Context, stateSaver state.Map) (err error) {
	if stateSaver == nil {
		return txerrors.NewArgumentError("stateSaver cannot be nil", nil)
	}
	ic := t.contextOrDefault()
	ctx, obs := beginPhase(ctx, ic, t.DisplayName(), PhaseInstall)
	defer func() { obs.end(err) }()

	ic.LogMessage("\nRunning a transacted installation.")
	defer ic.LogMessage("\nThe transacted install has completed.")

	ic.LogMessage("\nBeginning the Install phase of the installation.")
	if installErr := t.Node.Install(ctx, stateSaver); installErr != nil {
		ic.LogMessage("\nAn error occurred during the Install phase.")
		LogError(ic, installErr)
		ic.Logger().Errorf("Install phase failed, rolling back: %v", installErr)

		ic.LogMessage("\nThe Rollback phase of the installation is beginning.")
		if rbErr := t.Node.Rollback(ctx, stateSaver); rbErr != nil {
			ic.Logger().Warnf("Rollback after failed install reported an error: %v", rbErr)
		}
		ic.LogMessage("\nThe Rollback phase completed.")
		return txerrors.NewInstallAbortedError(installErr)
	}

	ic.LogMessage("\nThe Commit phase of the installation is beginning.")
	defer ic.LogMessage("\nThe Commit phase completed.")
	return t.Node.Commit(ctx, stateSaver)
}

// Uninstall uninstalls the tree. savedState may be nil.
func (t *Transacted) Uninstall(ctx context.Context, savedState state.Map) (err error) {
	ic := t.contextOrDefault()
	ctx, obs := beginPhase(ctx, ic, t.DisplayName(), PhaseUninstall)
	defer func() { obs.end(err) }()

	ic.LogMessage("\nThe uninstall is beginning.")
	defer ic.LogMessage("\nThe uninstall has completed.")
	return t.Node.Uninstall(ctx, savedState)
}

package installer

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
)

// LogError writes err and each error in its Unwrap chain to the install log.
// With "showcallstack" set, the goroutine stack at the logging site follows.
func LogError(ic *InstallContext, err error) {
	if ic == nil || err == nil {
		return
	}
	first := true
	for e := err; e != nil; e = errors.Unwrap(e) {
		if first {
			ic.LogMessage(fmt.Sprintf("%T: %s", e, e.Error()))
			first = false
		} else {
			ic.LogMessage(fmt.Sprintf("The inner error %T was returned with the following message: %s", e, e.Error()))
		}
	}
	if ic.IsParameterTrue(ParamShowCallStack) {
		ic.LogMessage(strings.TrimRight(string(debug.Stack()), "\n"))
	}
}

// recordPhaseError turns a child or hook failure into the error a
// best-effort phase returns. Errors that were already logged pass through
// unchanged. Anything else is logged once and wrapped in an InstallError
// tagged as reported so ancestors do not log it again.
func (n *Node) recordPhaseError(phase Phase, subject string, err error) error {
	if txerrors.IsAlreadyReported(err) {
		return err
	}
	ic := n.contextOrDefault()
	ic.LogMessage(fmt.Sprintf("An error occurred during the %s phase of '%s'.", phase, subject))
	LogError(ic, err)
	ic.Logger().Errorf("%s of '%s' failed: %v", phase, subject, err)
	return txerrors.NewInstallError(string(phase), phaseFailureMessage(phase), err)
}

func phaseFailureMessage(phase Phase) string {
	switch phase {
	case PhaseCommit:
		return "an error occurred during the commit phase; installation continued but the application might not function correctly"
	case PhaseRollback:
		return "an error occurred during the rollback phase; the machine might not be fully restored to its previous state"
	case PhaseUninstall:
		return "an error occurred during the uninstall phase; uninstallation continued but the application might not be fully removed"
	}
	return fmt.Sprintf("an error occurred during the %s phase", phase)
}

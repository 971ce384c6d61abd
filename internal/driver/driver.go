// Package driver turns a txinstall command line into an installer tree and
// runs it.
package driver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gxo-labs/txinstall/internal/discovery"
	"github.com/gxo-labs/txinstall/internal/logger"
	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

const (
	// DefaultLogFile is the install log of the transacted root.
	DefaultLogFile = "txinstall.InstallLog"

	// Usage is the first line of the help text.
	Usage = "Usage: txinstall [-u | -uninstall] [option [...]] component [[option [...]] component] [...]]"

	helpFooter = `Options are applied to every component that follows them on the command line.
-AssemblyName
 Components that follow are names looked up in -componentpath instead of manifest paths.
-ComponentPath=[directories]
 Directories, separated by the OS path list separator, searched for named components.
-InstallType=notransaction -Action={install|commit|rollback|uninstall}
 Run a single phase on every component without a transaction.`

	paramComponentPath = "componentpath"
	installTypeNoTx    = "notransaction"
)

// Options configures Run.
type Options struct {
	// Discoverer finds the units of each component. Required.
	Discoverer installer.Discoverer
	// LogFile is the install log of the root. Defaults to DefaultLogFile.
	LogFile string
	// SearchPath is searched for named components after -componentpath.
	SearchPath []string
	// ContextOptions are applied to the root install context.
	ContextOptions []installer.ContextOption
	// ComponentOptions are applied to every component.
	ComponentOptions []installer.ComponentOption
	// Logger receives diagnostics. Defaults to a discard logger.
	Logger txlog.Logger
}

type commandLine struct {
	uninstall bool
	help      bool
	byName    bool
	options   []string
}

// Run parses args, builds a transacted tree with one component per
// non-option argument and runs it. Requesting help, or naming no component,
// returns a HelpRequestedError whose message is the usage text.
func Run(ctx context.Context, args []string, opts Options) error {
	if opts.Discoverer == nil {
		return txerrors.NewArgumentError("a discoverer is required", nil)
	}
	if opts.LogFile == "" {
		opts.LogFile = DefaultLogFile
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	root, cl, err := build(args, opts)
	if cl.help {
		return helpError(root, opts)
	}
	if err != nil {
		return txerrors.NewInitializationError("", "unable to build the installer tree", err)
	}

	root.SetContext(installer.NewInstallContext(opts.LogFile, cl.options, opts.ContextOptions...))
	ic := root.Context()
	log.Debugf("Running %d component(s) with options %v", root.Installers().Len(), cl.options)

	installType, _ := ic.Parameter(installer.ParamInstallType)
	if strings.EqualFold(installType, installTypeNoTx) {
		action, _ := ic.Parameter(installer.ParamAction)
		return runPhase(ctx, root, action)
	}
	if cl.uninstall {
		return root.Uninstall(ctx, nil)
	}
	return root.Install(ctx, state.Map{})
}

// build walks the command line. Options seen so far are handed to every
// component that follows them.
func build(args []string, opts Options) (*installer.Transacted, commandLine, error) {
	root := installer.NewTransacted()
	var cl commandLine
	for _, arg := range args {
		if isHelp(arg) {
			cl.help = true
		}
	}

	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			switch name := strings.ToLower(strings.TrimLeft(arg, "-")); name {
			case "u", "uninstall":
				cl.uninstall = true
			case "?", "h", "help":
			case "assemblyname":
				cl.byName = true
			default:
				cl.options = append(cl.options, arg)
			}
			continue
		}

		source, err := resolve(arg, cl, opts)
		if err != nil {
			if cl.help {
				continue
			}
			return root, cl, err
		}
		componentOpts := append([]installer.ComponentOption{
			installer.WithArgs(append([]string(nil), cl.options...)),
			installer.WithNewContext(true),
		}, opts.ComponentOptions...)
		if err := root.Installers().Add(installer.NewComponent(source, opts.Discoverer, componentOpts...)); err != nil {
			return root, cl, err
		}
	}
	if root.Installers().Len() == 0 {
		cl.help = true
	}
	return root, cl, nil
}

func isHelp(arg string) bool {
	if !strings.HasPrefix(arg, "-") {
		return false
	}
	switch strings.ToLower(strings.TrimLeft(arg, "-")) {
	case "?", "h", "help":
		return true
	}
	return false
}

func resolve(arg string, cl commandLine, opts Options) (string, error) {
	if cl.byName {
		params := installer.ParseParameters(cl.options)
		search := discovery.SplitSearchPath(params[paramComponentPath])
		search = append(search, opts.SearchPath...)
		return discovery.ResolveComponent(arg, search)
	}
	info, err := os.Stat(arg)
	if err == nil && !info.IsDir() {
		return arg, nil
	}
	if strings.Contains(arg, "=") {
		return "", txerrors.NewArgumentError(
			fmt.Sprintf("the component '%s' does not exist; options must start with '-'", arg), err)
	}
	if err == nil {
		err = fmt.Errorf("'%s' is a directory", arg)
	}
	return "", txerrors.NewConfigError(fmt.Sprintf("cannot load component '%s'", arg), err)
}

func runPhase(ctx context.Context, root *installer.Transacted, action string) error {
	ic := root.Context()
	phase, ok := installer.ParsePhase(action)
	if !ok {
		phase = installer.PhaseInstall
	}
	ic.LogMessage(fmt.Sprintf("Running the %s phase without a transaction.", phase))

	for _, child := range root.Installers().Items() {
		child.Base().SetContext(ic)
		var err error
		switch phase {
		case installer.PhaseCommit:
			err = child.Commit(ctx, nil)
		case installer.PhaseRollback:
			err = child.Rollback(ctx, nil)
		case installer.PhaseUninstall:
			err = child.Uninstall(ctx, nil)
		default:
			err = child.Install(ctx, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func helpError(root *installer.Transacted, opts Options) error {
	if root.Installers().Len() == 0 {
		_ = root.Installers().Add(installer.NewComponent("", opts.Discoverer))
	}
	var b strings.Builder
	b.WriteString(Usage)
	b.WriteString("\n")
	b.WriteString(root.HelpText())
	b.WriteString("\n")
	b.WriteString(helpFooter)
	b.WriteString("\n")
	return txerrors.NewHelpRequestedError(b.String())
}

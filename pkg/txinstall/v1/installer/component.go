package installer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gxo-labs/txinstall/internal/tracing"
	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

const (
	// StateFileExtension replaces the component's extension to form its
	// state file path.
	StateFileExtension = ".InstallState"
	// LogFileExtension replaces the component's extension to form the path
	// of its own install log.
	LogFileExtension = ".InstallLog"

	maskedValue = "********"
)

const componentHelpHeader = `Component options:
-InstallStateDir=[directoryName]
 The directory that holds the component's .InstallState file.
 Defaults to the directory of the component.
-LogFile=[filename]
 File to write progress to. Defaults to <component>.InstallLog.
-LogToConsole={true|false}
 If false, progress is not echoed to the console.
-ShowCallStack
 Write the call stack of every error to the install log.`

var componentHelpPrinted atomic.Bool

var passwordKeywords = map[string]struct{}{ParamPassword: {}}

// Component wraps the installable units of one component and keeps the
// component's State Map in a state file next to it, so that commit, rollback
// and uninstall can run in a later process than install.
type Component struct {
	*Node

	// Source identifies the component, usually the absolute path of its manifest.
	Source string
	// Args are the options that apply to this component. They become the
	// parameters of the component's own context when UseNewContext is set.
	Args []string
	// UseNewContext gives the component its own install context and log file
	// at the start of every phase.
	UseNewContext bool

	discoverer  Discoverer
	store       state.Store
	serializer  state.Serializer
	initialized bool
}

// ComponentOption customizes a Component.
type ComponentOption func(*Component)

// WithStore replaces the filesystem state store.
func WithStore(s state.Store) ComponentOption {
	return func(c *Component) { c.store = s }
}

// WithSerializer replaces the JSON state serializer.
func WithSerializer(s state.Serializer) ComponentOption {
	return func(c *Component) { c.serializer = s }
}

// WithArgs sets the component's own options.
func WithArgs(args []string) ComponentOption {
	return func(c *Component) { c.Args = args }
}

// WithNewContext controls UseNewContext.
func WithNewContext(enabled bool) ComponentOption {
	return func(c *Component) { c.UseNewContext = enabled }
}

// NewComponent creates a component whose units are found by discoverer.
// A relative source is made absolute.
func NewComponent(source string, discoverer Discoverer, opts ...ComponentOption) *Component {
	if abs, err := filepath.Abs(source); err == nil && source != "" {
		source = abs
	}
	c := &Component{
		Node:       NewNode(),
		Source:     source,
		discoverer: discoverer,
		store:      state.NewFileStore(),
		serializer: state.NewJSONSerializer(),
	}
	c.Name = filepath.Base(source)
	c.Bind(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatePath returns the path of the component's state file. The
// "installstatedir" parameter moves the file into that directory.
func (c *Component) StatePath() string {
	if c.Source == "" {
		return ""
	}
	path := changeExtension(c.Source, StateFileExtension)
	if dir, _ := c.contextOrDefault().Parameter(ParamInstallStateDir); dir != "" {
		return filepath.Join(dir, filepath.Base(path))
	}
	return path
}

// Install discovers the component's units, installs them into a fresh State
// Map and writes that map to the state file whether or not the install
// succeeded. A failure to write the state file is returned joined with the
// install error. The recorded map is also copied into stateSaver.
func (c *Component) Install(ctx context.Context, stateSaver state.Map) (err error) {
	c.printStartText("Installing")
	if err := c.initialize(ctx); err != nil {
		return err
	}

	fresh := state.Map{}
	defer func() {
		for k, v := range fresh {
			if stateSaver != nil {
				stateSaver[k] = v
			}
		}
		if saveErr := c.saveState(fresh); saveErr != nil {
			if err == nil {
				err = saveErr
			} else {
				err = errors.Join(saveErr, err)
			}
		}
	}()
	return c.Node.Install(ctx, fresh)
}

// Commit commits the component's units using the state file when it exists.
// The state file is removed when the component has no units.
func (c *Component) Commit(ctx context.Context, savedState state.Map) error {
	c.printStartText("Committing")
	if err := c.initialize(ctx); err != nil {
		return err
	}
	path := c.StatePath()
	loaded, found, err := c.loadState(path)
	if err != nil {
		return err
	}
	if found {
		savedState = loaded
	}

	err = c.Node.Commit(ctx, savedState)
	if c.Installers().Len() == 0 {
		c.contextOrDefault().LogMessage("Removing the state file because the component has no installers.")
		if rmErr := c.removeState(path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// Rollback rolls back the component's units using the state file when it
// exists, then removes the state file.
func (c *Component) Rollback(ctx context.Context, savedState state.Map) (err error) {
	c.printStartText("Rolling back")
	if err := c.initialize(ctx); err != nil {
		return err
	}
	path := c.StatePath()
	loaded, found, err := c.loadState(path)
	if err != nil {
		return err
	}
	if found {
		savedState = loaded
	}

	defer func() {
		if rmErr := c.removeState(path); rmErr != nil && err == nil {
			err = rmErr
		}
	}()
	return c.Node.Rollback(ctx, savedState)
}

// Uninstall uninstalls the component's units with the recorded state, or
// with no state when the file is missing or unreadable. The state file is
// removed only when every unit uninstalled; a failed uninstall keeps it for
// a retry. Failing to remove the file is an error.
func (c *Component) Uninstall(ctx context.Context, _ state.Map) error {
	c.printStartText("Uninstalling")
	if err := c.initialize(ctx); err != nil {
		return err
	}
	ic := c.contextOrDefault()
	path := c.StatePath()

	var savedState state.Map
	if path != "" {
		loaded, found, err := c.loadState(path)
		switch {
		case err != nil:
			ic.LogMessage(fmt.Sprintf("Warning: the state file %s of component %s is corrupt and was ignored.", path, c.Source))
			ic.Logger().Warnf("Ignoring unreadable state file '%s': %v", path, err)
		case found:
			savedState = loaded
		}
	}

	if err := c.Node.Uninstall(ctx, savedState); err != nil {
		return err
	}
	if path != "" {
		return c.removeState(path)
	}
	return nil
}

// HelpText returns the help of the component's units. The first component
// help in a process is preceded by the component options.
func (c *Component) HelpText() string {
	if c.Source != "" && !c.initialized {
		if c.context == nil {
			c.SetContext(NewDefaultContext(WithConsole(nil)))
		}
		if err := c.initialize(context.Background()); err != nil {
			c.contextOrDefault().Logger().Warnf("Cannot load help for '%s': %v", c.Source, err)
		}
	}
	body := c.Node.HelpText()
	if componentHelpPrinted.Swap(true) {
		return body
	}
	return componentHelpHeader + "\n" + body
}

// initialize instantiates the discovered units once.
func (c *Component) initialize(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	ic := c.contextOrDefault()

	var factories []Factory
	if c.discoverer != nil {
		var err error
		factories, err = c.discoverer.Discover(WithInstallContext(ctx, ic), c.Source)
		if err != nil {
			ic.LogMessage(fmt.Sprintf("An error occurred while discovering the installers of %s.", c.Source))
			LogError(ic, err)
			ic.LogMessage(fmt.Sprintf("Aborting installation for %s.", c.Source))
			return txerrors.NewInitializationError(c.Source, "unable to discover installers", err)
		}
	}
	if len(factories) == 0 {
		ic.LogMessage(fmt.Sprintf("No installers were found in component %s.", c.Source))
	}

	for i, factory := range factories {
		inst, err := factory()
		if err == nil && inst == nil {
			err = fmt.Errorf("factory returned no installer")
		}
		if err == nil {
			err = c.Installers().Add(inst)
		}
		if err != nil {
			msg := fmt.Sprintf("unable to create installer #%d", i)
			ic.LogMessage(fmt.Sprintf("Cannot create installer #%d of %s.", i, c.Source))
			LogError(ic, err)
			return txerrors.NewInitializationError(c.Source, msg, err)
		}
	}
	c.initialized = true
	return nil
}

func (c *Component) componentContext() *InstallContext {
	parent := c.contextOrDefault()
	ic := parent.Derive(changeExtension(c.Source, LogFileExtension), c.Args)
	if v, ok := parent.Parameter(ParamLogToConsole); ok {
		ic.Parameters().Set(ParamLogToConsole, v)
	}
	ic.Parameters().Set(ParamAssemblyPath, c.Source)
	return ic
}

func (c *Component) printStartText(activity string) {
	if c.UseNewContext {
		next := c.componentContext()
		if c.context != nil {
			c.context.LogMessage(fmt.Sprintf("See the contents of the log file for the %s component's progress.", c.Source))
			c.context.LogMessage(fmt.Sprintf("The file is located at %s.", next.LogFile()))
		}
		c.SetContext(next)
	}
	ic := c.contextOrDefault()
	ic.LogMessage(fmt.Sprintf("%s component '%s'.", activity, c.Source))
	ic.LogMessage("Affected parameters are:")

	params := ic.Parameters()
	if len(params) == 0 {
		ic.LogMessage("   (none)")
		return
	}
	masked := tracing.RedactStringMap(params, passwordKeywords, maskedValue)
	for _, key := range params.Keys() {
		ic.LogMessage(fmt.Sprintf("   %s = %s", key, masked[key]))
	}
}

func (c *Component) loadState(path string) (state.Map, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	exists, err := c.store.Exists(path)
	if err != nil {
		return nil, false, txerrors.NewStateFileError("read", path, err)
	}
	if !exists {
		return nil, false, nil
	}
	data, err := c.store.Read(path)
	if err != nil {
		return nil, false, txerrors.NewStateFileError("read", path, err)
	}
	m, err := c.serializer.Deserialize(data)
	if err != nil {
		return nil, false, err
	}
	c.emitStateEvent(events.StateLoaded, path)
	return m, true, nil
}

func (c *Component) saveState(m state.Map) error {
	path := c.StatePath()
	if path == "" {
		return nil
	}
	data, err := c.serializer.Serialize(m)
	if err != nil {
		return txerrors.NewStateFileError("write", path, err)
	}
	if err := c.store.Write(path, data); err != nil {
		return txerrors.NewStateFileError("write", path, err)
	}
	c.emitStateEvent(events.StateSaved, path)
	return nil
}

func (c *Component) removeState(path string) error {
	if path == "" {
		return nil
	}
	if err := c.store.Remove(path); err != nil {
		return txerrors.NewStateFileError("delete", path, err)
	}
	c.emitStateEvent(events.StateRemoved, path)
	return nil
}

func (c *Component) emitStateEvent(t events.EventType, path string) {
	c.contextOrDefault().Events().Emit(events.Event{
		Type:      t,
		Timestamp: time.Now(),
		Installer: c.DisplayName(),
		Payload:   map[string]interface{}{"path": path},
	})
}

func changeExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

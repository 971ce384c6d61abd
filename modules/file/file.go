// Package file provides the "file" unit, which writes one file and can put
// back whatever it replaced.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gxo-labs/txinstall/internal/paramutil"
	"github.com/gxo-labs/txinstall/internal/registry"
	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
)

func init() {
	registry.Register("file", NewUnit)
}

// State keys recorded by Install.
const (
	keyPath         = "path"
	keyExisted      = "existed"
	keyPrevious     = "previousContent"
	keyPreviousMode = "previousMode"
)

// Config holds the unit's params.
type Config struct {
	Path    string      `param:"path"`
	Content string      `param:"content"`
	Mode    os.FileMode `param:"mode"`
}

// Unit writes Config.Content to Config.Path.
type Unit struct {
	*installer.Node
	cfg Config
}

// NewUnit is the registry factory.
func NewUnit() installer.Installer {
	u := &Unit{Node: installer.NewNode(), cfg: Config{Mode: 0o644}}
	u.Bind(u)
	return u
}

// Configure implements plugin.Configurable.
func (u *Unit) Configure(params map[string]interface{}) error {
	secrets.FromParams(params)
	if err := paramutil.CheckRequired(params, "path"); err != nil {
		return err
	}
	if err := paramutil.Decode(params, &u.cfg); err != nil {
		return err
	}
	if !filepath.IsAbs(u.cfg.Path) {
		return fmt.Errorf("path '%s' must be absolute", u.cfg.Path)
	}
	return nil
}

// Install records the file currently at the path, if any, then writes the
// new content.
func (u *Unit) Install(_ context.Context, stateSaver state.Map) error {
	path := u.cfg.Path
	stateSaver[keyPath] = path
	stateSaver[keyExisted] = false

	prev, err := os.ReadFile(path)
	switch {
	case err == nil:
		info, statErr := os.Stat(path)
		if statErr != nil {
			return statErr
		}
		stateSaver[keyExisted] = true
		stateSaver[keyPrevious] = prev
		stateSaver[keyPreviousMode] = int(info.Mode().Perm())
		u.LogMessage(fmt.Sprintf("Replacing file %s.", path))
	case errors.Is(err, os.ErrNotExist):
		u.LogMessage(fmt.Sprintf("Creating file %s.", path))
	default:
		return fmt.Errorf("cannot read existing file %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(u.cfg.Content), u.cfg.Mode); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return os.Chmod(path, u.cfg.Mode)
}

// Commit drops the saved copy of the replaced file.
func (u *Unit) Commit(_ context.Context, savedState state.Map) error {
	if savedState == nil {
		return nil
	}
	delete(savedState, keyPrevious)
	delete(savedState, keyPreviousMode)
	return nil
}

// Rollback restores the replaced file, or removes the file when it did not
// exist before Install.
func (u *Unit) Rollback(_ context.Context, savedState state.Map) error {
	path, ok := savedState.GetString(keyPath)
	if !ok {
		// Install failed before touching anything.
		return nil
	}
	if existed, _ := savedState.GetBool(keyExisted); existed {
		prev, _ := savedState[keyPrevious].([]byte)
		mode, ok := savedState.GetInt(keyPreviousMode)
		if !ok {
			mode = 0o644
		}
		u.LogMessage(fmt.Sprintf("Restoring file %s.", path))
		if err := os.WriteFile(path, prev, os.FileMode(mode)); err != nil {
			return err
		}
		return os.Chmod(path, os.FileMode(mode))
	}
	u.LogMessage(fmt.Sprintf("Removing file %s.", path))
	return removeIfPresent(path)
}

// Uninstall removes the file. Without saved state the configured path is used.
func (u *Unit) Uninstall(_ context.Context, savedState state.Map) error {
	path, ok := savedState.GetString(keyPath)
	if !ok {
		path = u.cfg.Path
	}
	u.LogMessage(fmt.Sprintf("Removing file %s.", path))
	return removeIfPresent(path)
}

// HelpText describes the params.
func (u *Unit) HelpText() string {
	return `file unit params:
 path     Absolute path of the file to write (required).
 content  Text to write. Templates such as {{ .targetdir }} are expanded.
 mode     Octal permissions, default 0644.`
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

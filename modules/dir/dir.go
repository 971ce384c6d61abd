// Package dir provides the "dir" unit, which creates a directory tree and
// removes the part of it that it created.
package dir

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
	registry.Register("dir", NewUnit)
}

const (
	keyPath    = "path"
	keyCreated = "created"
)

// Config holds the unit's params.
type Config struct {
	Path string      `param:"path"`
	Mode os.FileMode `param:"mode"`
	// Purge removes the created tree with its content instead of only
	// removing directories that are empty.
	Purge bool `param:"purge"`
}

// Unit creates Config.Path with all missing parents.
type Unit struct {
	*installer.Node
	cfg Config
}

// NewUnit is the registry factory.
func NewUnit() installer.Installer {
	u := &Unit{Node: installer.NewNode(), cfg: Config{Mode: 0o755}}
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
	u.cfg.Path = filepath.Clean(u.cfg.Path)
	return nil
}

// Install creates the directory and records the outermost directory it had
// to create, or "" when the directory already existed.
func (u *Unit) Install(_ context.Context, stateSaver state.Map) error {
	created, err := firstMissing(u.cfg.Path)
	if err != nil {
		return err
	}
	stateSaver[keyPath] = u.cfg.Path
	stateSaver[keyCreated] = created

	if created == "" {
		u.LogMessage(fmt.Sprintf("Directory %s already exists.", u.cfg.Path))
		return nil
	}
	u.LogMessage(fmt.Sprintf("Creating directory %s.", u.cfg.Path))
	return os.MkdirAll(u.cfg.Path, u.cfg.Mode)
}

// Commit has nothing to finalize.
func (u *Unit) Commit(context.Context, state.Map) error { return nil }

// Rollback removes what Install created.
func (u *Unit) Rollback(_ context.Context, savedState state.Map) error {
	created, _ := savedState.GetString(keyCreated)
	if created == "" {
		return nil
	}
	return u.remove(created)
}

// Uninstall removes what Install created. Without saved state only the
// configured directory itself is removed.
func (u *Unit) Uninstall(_ context.Context, savedState state.Map) error {
	created, ok := savedState.GetString(keyCreated)
	if !ok {
		created = u.cfg.Path
	}
	if created == "" {
		return nil
	}
	return u.remove(created)
}

// remove deletes the directories from the configured path up to and
// including top. Without Purge a directory that is not empty stops the walk
// and is left in place.
func (u *Unit) remove(top string) error {
	if u.cfg.Purge {
		u.LogMessage(fmt.Sprintf("Removing directory tree %s.", top))
		return os.RemoveAll(top)
	}
	for current := u.cfg.Path; ; current = filepath.Dir(current) {
		if err := os.Remove(current); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if current == top {
					return nil
				}
				continue
			}
			u.LogMessage(fmt.Sprintf("Directory %s is not empty and was left in place.", current))
			return nil
		}
		u.LogMessage(fmt.Sprintf("Removed directory %s.", current))
		if current == top || current == filepath.Dir(current) {
			return nil
		}
	}
}

// HelpText describes the params.
func (u *Unit) HelpText() string {
	return `dir unit params:
 path   Absolute directory to create, with missing parents (required).
 mode   Octal permissions, default 0755.
 purge  Remove created directories with their content on rollback and uninstall.`
}

// firstMissing returns the outermost ancestor of path (or path itself) that
// does not exist yet, or "" when path exists.
func firstMissing(path string) (string, error) {
	missing := ""
	for current := path; ; current = filepath.Dir(current) {
		info, err := os.Stat(current)
		if err == nil {
			if !info.IsDir() {
				return "", fmt.Errorf("%s exists and is not a directory", current)
			}
			return missing, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		missing = current
		if current == filepath.Dir(current) {
			return missing, nil
		}
	}
}

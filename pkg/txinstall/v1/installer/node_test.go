package installer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T, n int) (*installer.Node, []*artifactUnit, *callLog) {
	t.Helper()
	log := &callLog{}
	units := newUnits(t.TempDir(), log, n)
	root := installer.NewNode()
	root.Name = "root"
	require.NoError(t, root.Installers().AddRange(asInstallers(units)...))
	ic, _ := quietContext("-logtoconsole=false")
	root.SetContext(ic)
	return root, units, log
}

func TestNode_InstallRequiresStateMap(t *testing.T) {
	root, _, log := newTree(t, 1)

	err := root.Install(context.Background(), nil)

	var argErr *txerrors.ArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Empty(t, log.all())
}

func TestNode_InstallRecordsReservedKeys(t *testing.T) {
	root, units, log := newTree(t, 3)
	saved := state.Map{}

	require.NoError(t, root.Install(context.Background(), saved))

	assert.Equal(t, []string{"install:unit0", "install:unit1", "install:unit2"}, log.all())
	assert.Equal(t, 2, saved[state.LastAttemptedIndexKey])
	nested, ok := saved[state.NestedStatesKey].([]state.Map)
	require.True(t, ok)
	require.Len(t, nested, 3)
	for i, u := range units {
		assert.Equal(t, u.path, nested[i]["path"])
		assert.True(t, fileExists(u.path))
	}
}

func TestNode_InstallPropagatesContext(t *testing.T) {
	root, units, _ := newTree(t, 2)
	require.NoError(t, root.Install(context.Background(), state.Map{}))
	for _, u := range units {
		assert.Same(t, root.Context(), u.Context())
	}
}

func TestNode_InstallFailureStillWritesReservedKeys(t *testing.T) {
	root, units, log := newTree(t, 3)
	units[1].failInstall = true
	afterFired := false
	root.AddHook(installer.AfterInstall, func(context.Context, state.Map) error {
		afterFired = true
		return nil
	})
	saved := state.Map{}

	err := root.Install(context.Background(), saved)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "install of unit1 exploded")
	assert.False(t, txerrors.IsAlreadyReported(err), "install errors are returned as-is")
	assert.Equal(t, []string{"install:unit0", "install:unit1"}, log.all())
	assert.Equal(t, 1, saved[state.LastAttemptedIndexKey])
	assert.Len(t, saved[state.NestedStatesKey], 2)
	assert.False(t, afterFired)
}

func TestNode_InstallHooks(t *testing.T) {
	t.Run("Before hook failure aborts without touching children", func(t *testing.T) {
		root, _, log := newTree(t, 2)
		root.AddHook(installer.BeforeInstall, func(context.Context, state.Map) error { return errors.New("not ready") })

		err := root.Install(context.Background(), state.Map{})

		var beforeErr *txerrors.BeforeInstallError
		require.True(t, errors.As(err, &beforeErr))
		assert.Contains(t, err.Error(), "not ready")
		assert.Empty(t, log.all())
	})

	t.Run("After hook failure is distinct", func(t *testing.T) {
		root, _, log := newTree(t, 2)
		root.AddHook(installer.AfterInstall, func(context.Context, state.Map) error { return errors.New("verification failed") })
		saved := state.Map{}

		err := root.Install(context.Background(), saved)

		var afterErr *txerrors.AfterInstallError
		require.True(t, errors.As(err, &afterErr))
		var beforeErr *txerrors.BeforeInstallError
		assert.False(t, errors.As(err, &beforeErr))
		assert.Len(t, log.all(), 2)
		assert.Contains(t, saved, state.NestedStatesKey)
	})

	t.Run("Callbacks run in order and stop at the first failure", func(t *testing.T) {
		root, _, _ := newTree(t, 0)
		var order []string
		root.AddHook(installer.BeforeInstall, func(context.Context, state.Map) error { order = append(order, "first"); return nil })
		root.AddHook(installer.BeforeInstall, func(context.Context, state.Map) error { order = append(order, "second"); return errors.New("stop") })
		root.AddHook(installer.BeforeInstall, func(context.Context, state.Map) error { order = append(order, "third"); return nil })

		require.Error(t, root.Install(context.Background(), state.Map{}))
		assert.Equal(t, []string{"first", "second"}, order)
	})
}

func installed(t *testing.T, root *installer.Node) state.Map {
	t.Helper()
	saved := state.Map{}
	require.NoError(t, root.Install(context.Background(), saved))
	return saved
}

func TestNode_CommitAscendingAndDropsIndex(t *testing.T) {
	root, _, log := newTree(t, 3)
	saved := installed(t, root)

	require.NoError(t, root.Commit(context.Background(), saved))

	assert.Equal(t, []string{"commit:unit0", "commit:unit1", "commit:unit2"}, log.all()[3:])
	assert.NotContains(t, saved, state.LastAttemptedIndexKey)
	nested := saved[state.NestedStatesKey].([]state.Map)
	for _, m := range nested {
		assert.Equal(t, true, m["committed"])
	}
}

func TestNode_RollbackDescending(t *testing.T) {
	root, units, log := newTree(t, 3)
	saved := installed(t, root)

	require.NoError(t, root.Rollback(context.Background(), saved))

	assert.Equal(t, []string{"rollback:unit2", "rollback:unit1", "rollback:unit0"}, log.all()[3:])
	assert.Contains(t, saved, state.LastAttemptedIndexKey)
	for _, u := range units {
		assert.False(t, fileExists(u.path))
	}
}

func TestNode_RollbackOnlyAttemptedChildren(t *testing.T) {
	root, units, log := newTree(t, 3)
	units[1].failInstall = true
	saved := state.Map{}
	require.Error(t, root.Install(context.Background(), saved))

	require.NoError(t, root.Rollback(context.Background(), saved))

	assert.Equal(t, []string{"rollback:unit1", "rollback:unit0"}, log.all()[2:])
}

func TestNode_CommitAndRollbackValidateArguments(t *testing.T) {
	testCases := []struct {
		name  string
		saved state.Map
	}{
		{name: "Nil map", saved: nil},
		{name: "Missing index", saved: state.Map{state.NestedStatesKey: []state.Map{}}},
		{name: "Missing nested states", saved: state.Map{state.LastAttemptedIndexKey: -1}},
		{name: "Index of wrong type", saved: state.Map{state.LastAttemptedIndexKey: "zero", state.NestedStatesKey: []state.Map{}}},
		{name: "Nested states of wrong type", saved: state.Map{state.LastAttemptedIndexKey: 0, state.NestedStatesKey: "none"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, _, log := newTree(t, 1)
			var argErr *txerrors.ArgumentError
			assert.True(t, errors.As(root.Commit(context.Background(), tc.saved), &argErr))
			assert.True(t, errors.As(root.Rollback(context.Background(), tc.saved), &argErr))
			assert.Empty(t, log.all())
		})
	}
}

func TestNode_CorruptStateRunsNoChildren(t *testing.T) {
	testCases := []struct {
		name  string
		saved state.Map
	}{
		{
			name:  "Fewer nested states than attempted",
			saved: state.Map{state.LastAttemptedIndexKey: 2, state.NestedStatesKey: []state.Map{{}, {}}},
		},
		{
			name:  "More nested states than attempted",
			saved: state.Map{state.LastAttemptedIndexKey: 0, state.NestedStatesKey: []state.Map{{}, {}}},
		},
		{
			name:  "Attempted index beyond children",
			saved: state.Map{state.LastAttemptedIndexKey: 3, state.NestedStatesKey: []state.Map{{}, {}, {}, {}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, _, log := newTree(t, 3)

			var corrupt *txerrors.CorruptStateError
			assert.True(t, errors.As(root.Commit(context.Background(), tc.saved), &corrupt))
			assert.True(t, errors.As(root.Rollback(context.Background(), tc.saved), &corrupt))
			assert.Empty(t, log.all())
		})
	}
}

func TestNode_CommitIsBestEffort(t *testing.T) {
	root, units, log := newTree(t, 3)
	saved := installed(t, root)
	units[1].failCommit = true

	var logged []string
	unsubscribe := installer.DefaultLogHandlers.Subscribe(func(m string) { logged = append(logged, m) })
	defer unsubscribe()

	err := root.Commit(context.Background(), saved)

	require.Error(t, err)
	var installErr *txerrors.InstallError
	require.True(t, errors.As(err, &installErr))
	assert.True(t, installErr.Reported)
	assert.Equal(t, "commit", installErr.Phase)
	assert.Contains(t, err.Error(), "commit of unit1 exploded")
	assert.Equal(t, []string{"commit:unit0", "commit:unit1", "commit:unit2"}, log.all()[3:])
	assert.NotContains(t, saved, state.LastAttemptedIndexKey)
	assert.True(t, containsLine(logged, "commit of unit1 exploded"))
}

func TestNode_RollbackIsBestEffortAndKeepsLastError(t *testing.T) {
	root, _, log := newTree(t, 3)
	saved := installed(t, root)
	units := root.Installers().Items()
	units[2].(*artifactUnit).failRollback = true
	units[0].(*artifactUnit).failRollback = true

	err := root.Rollback(context.Background(), saved)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback of unit0 exploded", "the last recorded failure wins")
	assert.Equal(t, []string{"rollback:unit2", "rollback:unit1", "rollback:unit0"}, log.all()[3:])
}

func TestNode_ReportedErrorsAreNotLoggedTwice(t *testing.T) {
	dir := t.TempDir()
	log := &callLog{}
	leaf := newArtifactUnit("leaf", dir+"/leaf.txt", log)
	leaf.failCommit = true

	middle := installer.NewNode()
	middle.Name = "middle"
	require.NoError(t, middle.Installers().Add(leaf))
	root := installer.NewNode()
	root.Name = "root"
	require.NoError(t, root.Installers().Add(middle))

	var logged []string
	ic := installer.NewInstallContext("", []string{"-logtoconsole=false"},
		installer.WithLogHandler(func(m string) { logged = append(logged, m) }))
	root.SetContext(ic)

	saved := installed(t, root)
	err := root.Commit(context.Background(), saved)

	var installErr *txerrors.InstallError
	require.True(t, errors.As(err, &installErr))
	count := 0
	for _, line := range logged {
		if strings.Contains(line, "commit of leaf exploded") {
			count++
		}
	}
	assert.Equal(t, 1, count, "the leaf failure is logged exactly once")
	assert.Equal(t, 1, strings.Count(err.Error(), "commit of leaf exploded"))
}

func TestNode_CommitHookFailuresAreRecorded(t *testing.T) {
	root, _, log := newTree(t, 2)
	saved := installed(t, root)
	root.AddHook(installer.BeforeCommit, func(context.Context, state.Map) error { return errors.New("hook broke") })

	err := root.Commit(context.Background(), saved)

	var hookErr *txerrors.HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, string(installer.BeforeCommit), hookErr.Hook)
	assert.True(t, txerrors.IsAlreadyReported(err))
	assert.Equal(t, []string{"commit:unit0", "commit:unit1"}, log.all()[2:], "children still commit")
}

func TestNode_UninstallToleratesNilState(t *testing.T) {
	root, units, log := newTree(t, 3)
	require.NoError(t, root.Install(context.Background(), state.Map{}))

	require.NoError(t, root.Uninstall(context.Background(), nil))

	assert.Equal(t, []string{"uninstall:unit2", "uninstall:unit1", "uninstall:unit0"}, log.all()[3:])
	for _, u := range units {
		require.Len(t, u.uninstallState, 1)
		assert.Nil(t, u.uninstallState[0])
		assert.False(t, fileExists(u.path))
	}
}

func TestNode_UninstallUsesNestedStates(t *testing.T) {
	root, units, _ := newTree(t, 2)
	saved := installed(t, root)
	require.NoError(t, root.Commit(context.Background(), saved))

	require.NoError(t, root.Uninstall(context.Background(), saved))

	for _, u := range units {
		require.Len(t, u.uninstallState, 1)
		assert.Equal(t, u.path, u.uninstallState[0]["path"])
	}
}

func TestNode_UninstallRequiresOneStatePerChild(t *testing.T) {
	root, _, log := newTree(t, 3)
	saved := state.Map{state.LastAttemptedIndexKey: 0, state.NestedStatesKey: []state.Map{{}}}

	err := root.Uninstall(context.Background(), saved)

	var corrupt *txerrors.CorruptStateError
	assert.True(t, errors.As(err, &corrupt))
	assert.Empty(t, log.all())
}

func TestNode_UninstallIsBestEffort(t *testing.T) {
	root, units, log := newTree(t, 3)
	units[2].failUninstall = true

	err := root.Uninstall(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, txerrors.IsAlreadyReported(err))
	assert.Equal(t, []string{"uninstall:unit2", "uninstall:unit1", "uninstall:unit0"}, log.all())
}

func TestNode_ShowCallStack(t *testing.T) {
	root, units, _ := newTree(t, 1)
	var logged []string
	root.SetContext(installer.NewInstallContext("", []string{"-logtoconsole=false", "-showcallstack"},
		installer.WithLogHandler(func(m string) { logged = append(logged, m) })))
	saved := installed(t, root)
	units[0].failCommit = true

	require.Error(t, root.Commit(context.Background(), saved))
	assert.True(t, containsLine(logged, "goroutine"))
}

func TestNode_HelpText(t *testing.T) {
	root, _, _ := newTree(t, 2)
	root.Installers().At(1).Base().Name = "renamed"

	assert.Equal(t, "Help for unit0\nHelp for renamed\n", root.HelpText())
	assert.Equal(t, "", installer.NewNode().HelpText())
}

func TestNode_DisplayNameDefaultsToType(t *testing.T) {
	u := newArtifactUnit("", "/dev/null", &callLog{})
	assert.Equal(t, "*installer_test.artifactUnit", u.DisplayName())
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

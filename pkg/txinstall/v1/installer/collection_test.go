package installer_test

import (
	"errors"
	"testing"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) *installer.Node {
	n := installer.NewNode()
	n.Name = name
	return n
}

func TestCollection_RejectsSelfAndCycles(t *testing.T) {
	a, b, c := named("a"), named("b"), named("c")
	require.NoError(t, a.Installers().Add(b))
	require.NoError(t, b.Installers().Add(c))

	var treeErr *txerrors.TreeError
	assert.True(t, errors.As(a.Installers().Add(a), &treeErr), "self")
	assert.True(t, errors.As(c.Installers().Add(a), &treeErr), "grandparent")
	assert.True(t, errors.As(b.Installers().Add(a), &treeErr), "parent")
	assert.True(t, errors.As(c.SetParent(c), &treeErr))
	assert.True(t, errors.As(a.SetParent(c), &treeErr))

	assert.Nil(t, a.Parent())
	assert.Equal(t, 1, a.Installers().Len())
	assert.True(t, a.TreeContains(c))
	assert.False(t, c.TreeContains(a))
}

func TestCollection_RejectsDuplicatesAndNil(t *testing.T) {
	a, b := named("a"), named("b")
	require.NoError(t, a.Installers().Add(b))

	var treeErr *txerrors.TreeError
	assert.True(t, errors.As(a.Installers().Add(b), &treeErr))
	assert.Equal(t, 1, a.Installers().Len())

	var argErr *txerrors.ArgumentError
	assert.True(t, errors.As(a.Installers().Add(nil), &argErr))
	assert.True(t, errors.As(a.Installers().Insert(5, named("x")), &argErr))
	assert.True(t, errors.As(a.Installers().RemoveAt(3), &argErr))
}

func TestCollection_AddingMovesBetweenParents(t *testing.T) {
	a, b, child := named("a"), named("b"), named("child")
	require.NoError(t, a.Installers().Add(child))

	require.NoError(t, b.Installers().Add(child))

	assert.Same(t, b, child.Parent())
	assert.Equal(t, 0, a.Installers().Len())
	assert.Equal(t, 1, b.Installers().Len())
}

func TestNode_SetParent(t *testing.T) {
	a, b, child := named("a"), named("b"), named("child")

	require.NoError(t, child.SetParent(a))
	assert.True(t, a.Installers().Contains(child))

	require.NoError(t, child.SetParent(b))
	assert.False(t, a.Installers().Contains(child))
	assert.True(t, b.Installers().Contains(child))

	require.NoError(t, child.SetParent(nil))
	assert.Nil(t, child.Parent())
	assert.Equal(t, 0, b.Installers().Len())
	require.NoError(t, child.SetParent(nil))
}

func TestCollection_OrderAndRemoval(t *testing.T) {
	root := named("root")
	x, y, z := named("x"), named("y"), named("z")
	require.NoError(t, root.Installers().AddRange(x, z))
	require.NoError(t, root.Installers().Insert(1, y))

	names := func() []string {
		var out []string
		for _, inst := range root.Installers().Items() {
			out = append(out, inst.Base().DisplayName())
		}
		return out
	}
	assert.Equal(t, []string{"x", "y", "z"}, names())
	assert.Equal(t, 2, root.Installers().IndexOf(z))

	assert.True(t, root.Installers().Remove(y))
	assert.False(t, root.Installers().Remove(y))
	assert.Nil(t, y.Parent())
	assert.Equal(t, []string{"x", "z"}, names())

	require.NoError(t, root.Installers().RemoveAt(0))
	assert.Equal(t, []string{"z"}, names())

	root.Installers().Clear()
	assert.Equal(t, 0, root.Installers().Len())
	assert.Nil(t, z.Parent())
}

func TestCollection_EmbeddedUnitIdentity(t *testing.T) {
	root := named("root")
	u := newArtifactUnit("unit", "/dev/null", &callLog{})
	require.NoError(t, root.Installers().Add(u))

	assert.True(t, root.Installers().Contains(u))
	assert.True(t, root.Installers().Contains(u.Node), "the embedded node identifies the same child")
	assert.Same(t, root, u.Parent())

	_, ok := root.Installers().At(0).(*artifactUnit)
	assert.True(t, ok, "the collection dispatches to the embedding unit")
}

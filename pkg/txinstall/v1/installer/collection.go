package installer

import (
	"fmt"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
)

// Collection is the ordered list of children owned by a Node. Adding an
// installer to a collection makes the owner its parent and removes it from
// any previous parent.
type Collection struct {
	owner *Node
	items []Installer
}

func newCollection(owner *Node) *Collection {
	return &Collection{owner: owner}
}

// Len returns the number of children.
func (c *Collection) Len() int { return len(c.items) }

// At returns the child at index i.
func (c *Collection) At(i int) Installer { return c.items[i] }

// Items returns a copy of the children in order.
func (c *Collection) Items() []Installer {
	return append([]Installer(nil), c.items...)
}

// IndexOf returns the position of inst, or -1.
func (c *Collection) IndexOf(inst Installer) int {
	if inst == nil {
		return -1
	}
	target := inst.Base()
	for i, item := range c.items {
		if item.Base() == target {
			return i
		}
	}
	return -1
}

// Contains reports whether inst is a direct child.
func (c *Collection) Contains(inst Installer) bool {
	return c.IndexOf(inst) >= 0
}

// Add appends inst to the collection.
func (c *Collection) Add(inst Installer) error {
	return c.Insert(len(c.items), inst)
}

// AddRange appends each installer in order, stopping at the first error.
func (c *Collection) AddRange(insts ...Installer) error {
	for _, inst := range insts {
		if err := c.Add(inst); err != nil {
			return err
		}
	}
	return nil
}

// Insert places inst at index. It fails with a TreeError when inst is the
// owner itself, an ancestor of the owner or already a child of the owner.
func (c *Collection) Insert(index int, inst Installer) error {
	if inst == nil || inst.Base() == nil {
		return txerrors.NewArgumentError("installer cannot be nil", nil)
	}
	if index < 0 || index > len(c.items) {
		return txerrors.NewArgumentError(fmt.Sprintf("index %d out of range [0,%d]", index, len(c.items)), nil)
	}
	child := inst.Base()
	if child == c.owner {
		return txerrors.NewTreeError(fmt.Sprintf("'%s' cannot be added to itself", child.DisplayName()))
	}
	for p := c.owner; p != nil; p = p.parent {
		if p == child {
			return txerrors.NewTreeError(fmt.Sprintf("adding '%s' to '%s' would create a cycle", child.DisplayName(), c.owner.DisplayName()))
		}
	}
	if child.parent == c.owner && c.Contains(inst) {
		return txerrors.NewTreeError(fmt.Sprintf("'%s' is already a child of '%s'", child.DisplayName(), c.owner.DisplayName()))
	}
	if child.parent != nil {
		child.parent.Installers().detach(child)
	}

	child.parent = c.owner
	child.self = inst
	c.items = append(c.items, nil)
	copy(c.items[index+1:], c.items[index:])
	c.items[index] = inst
	return nil
}

// Remove detaches inst from the collection. It reports whether inst was found.
func (c *Collection) Remove(inst Installer) bool {
	if inst == nil {
		return false
	}
	return c.detach(inst.Base())
}

// RemoveAt detaches the child at index.
func (c *Collection) RemoveAt(index int) error {
	if index < 0 || index >= len(c.items) {
		return txerrors.NewArgumentError(fmt.Sprintf("index %d out of range [0,%d)", index, len(c.items)), nil)
	}
	c.detach(c.items[index].Base())
	return nil
}

// Clear detaches every child.
func (c *Collection) Clear() {
	for _, item := range c.items {
		item.Base().parent = nil
	}
	c.items = nil
}

func (c *Collection) detach(node *Node) bool {
	for i, item := range c.items {
		if item.Base() == node {
			c.items = append(c.items[:i], c.items[i+1:]...)
			node.parent = nil
			return true
		}
	}
	return false
}

package accounts

import (
	"fmt"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Chart is an arena of accounts for one company indexed by id, with a children index
// derived from parent links.
type Chart struct {
	nodes    map[int64]Account
	children map[int64][]int64
}

// NewChart indexes accounts.
func NewChart(accounts []Account) *Chart {
	c := &Chart{
		nodes:    make(map[int64]Account, len(accounts)),
		children: make(map[int64][]int64),
	}
	for _, a := range accounts {
		c.nodes[a.ID] = a
	}
	for _, a := range accounts {
		if a.ParentID != nil {
			c.children[*a.ParentID] = append(c.children[*a.ParentID], a.ID)
		}
	}
	for parent := range c.children {
		c.sortChildren(parent)
	}
	return c
}

func (c *Chart) sortChildren(parent int64) {
	slices.SortFunc(c.children[parent], func(a, b int64) int {
		return strings.Compare(c.nodes[a].Code, c.nodes[b].Code)
	})
}

// Len returns the number of accounts.
func (c *Chart) Len() int { return len(c.nodes) }

// Get returns the account with id.
func (c *Chart) Get(id int64) (Account, bool) {
	a, ok := c.nodes[id]
	return a, ok
}

// Children returns the direct children of id ordered by code.
func (c *Chart) Children(id int64) []int64 {
	return slices.Clone(c.children[id])
}

// Roots returns top-level accounts ordered by code.
func (c *Chart) Roots() []Account {
	var roots []Account
	for _, a := range c.nodes {
		if a.ParentID == nil {
			roots = append(roots, a)
		}
	}
	slices.SortFunc(roots, func(a, b Account) int { return strings.Compare(a.Code, b.Code) })
	return roots
}

// Ancestors returns the ancestors of id, root first. The walk is bounded by the chart size
// so a corrupted parent chain surfaces as ErrCycleDetected instead of looping.
func (c *Chart) Ancestors(id int64) ([]Account, error) {
	node, ok := c.nodes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	var chain []Account
	for steps := 0; node.ParentID != nil; steps++ {
		if steps > len(c.nodes) {
			return nil, shared.ErrCycleDetected
		}
		parent, ok := c.nodes[*node.ParentID]
		if !ok {
			return nil, fmt.Errorf("account %d: parent %d: %w", node.ID, *node.ParentID, shared.ErrNotFound)
		}
		chain = append(chain, parent)
		node = parent
	}
	slices.Reverse(chain)
	return chain, nil
}

// Subtree returns id followed by all its descendants in breadth-first order.
func (c *Chart) Subtree(id int64) []int64 {
	if _, ok := c.nodes[id]; !ok {
		return nil
	}
	out := []int64{id}
	seen := map[int64]bool{id: true}
	for i := 0; i < len(out); i++ {
		for _, child := range c.children[out[i]] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
		}
	}
	return out
}

// createsCycle walks upward from newParent and reports whether id is reached.
func (c *Chart) createsCycle(id, newParent int64) bool {
	cur := newParent
	for steps := 0; steps <= len(c.nodes); steps++ {
		if cur == id {
			return true
		}
		node, ok := c.nodes[cur]
		if !ok || node.ParentID == nil {
			return false
		}
		cur = *node.ParentID
	}
	return true
}

// CheckParent validates attaching child below parentID.
func (c *Chart) CheckParent(child Account, parentID int64) error {
	parent, ok := c.nodes[parentID]
	if !ok {
		return fmt.Errorf("parent %d: %w", parentID, shared.ErrNotFound)
	}
	if child.ID != 0 && c.createsCycle(child.ID, parentID) {
		return shared.ErrCycleDetected
	}
	if !sameScope(child, parent) {
		return shared.ErrScopeMismatch
	}
	if parent.Postable {
		return shared.ErrParentPostable
	}
	if child.Type != parent.Type {
		return fmt.Errorf("%s under %s: %w", child.Type, parent.Type, shared.ErrInvalidTypeNarrowing)
	}
	if parent.Subtype != "" && child.Subtype != parent.Subtype {
		return fmt.Errorf("subtype %q under %q: %w", child.Subtype, parent.Subtype, shared.ErrInvalidTypeNarrowing)
	}
	return nil
}

// CodeTaken reports whether another account in the same scope already uses code.
func (c *Chart) CodeTaken(a Account) bool {
	for _, other := range c.nodes {
		if other.ID != a.ID && other.Code == a.Code && sameScope(other, a) {
			return true
		}
	}
	return false
}

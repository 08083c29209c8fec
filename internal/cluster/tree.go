package cluster

import (
	"fmt"
	"io"
	"strings"

	"github.com/jengzang/landuse-tree/internal/models"
)

// DescendantIDs returns the ids of all unpruned nodes below n.
func (n *Node) DescendantIDs() []string {
	ids := []string{}
	for _, c := range n.children {
		if c.Pruned {
			continue
		}
		ids = append(ids, c.ID)
		ids = append(ids, c.DescendantIDs()...)
	}
	return uniq(ids)
}

// AncestorIDs returns the ids of n's unpruned ancestors, nearest first.
func (n *Node) AncestorIDs() []string {
	ids := []string{}
	for p := n.parent; p != nil; p = p.parent {
		if p.Pruned {
			continue
		}
		ids = append(ids, p.ID)
	}
	return uniq(ids)
}

// SiblingAndDescendantIDs returns the ids of n's unpruned siblings and
// their unpruned descendants.
func (n *Node) SiblingAndDescendantIDs() []string {
	ids := []string{}
	if n.parent == nil {
		return ids
	}
	for _, s := range n.parent.children {
		if s == n || s.Pruned {
			continue
		}
		ids = append(ids, s.ID)
		ids = append(ids, s.DescendantIDs()...)
	}
	return uniq(ids)
}

// NodesArray flattens the subtree rooted at n in pre-order. With
// unprunedOnly set, pruned nodes and their subtrees are skipped.
func (n *Node) NodesArray(unprunedOnly bool) []*Node {
	if unprunedOnly && n.Pruned {
		return nil
	}
	out := []*Node{n}
	for _, c := range n.children {
		out = append(out, c.NodesArray(unprunedOnly)...)
	}
	return out
}

// Walk calls fn for every node of the subtree in post-order, stopping at
// the first error.
func (n *Node) Walk(fn func(node *Node, depth int) error) error {
	return n.walk(0, fn)
}

func (n *Node) walk(depth int, fn func(*Node, int) error) error {
	for _, c := range n.children {
		if err := c.walk(depth+1, fn); err != nil {
			return err
		}
	}
	return fn(n, depth)
}

// UnprunedCount returns the number of unpruned nodes in the subtree.
func (n *Node) UnprunedCount() int {
	if n.Pruned {
		return 0
	}
	count := 1
	for _, c := range n.children {
		count += c.UnprunedCount()
	}
	return count
}

// MaxDepth returns the depth of the deepest unpruned node below n.
func (n *Node) MaxDepth() int {
	return n.maxDepth(0)
}

func (n *Node) maxDepth(current int) int {
	if n.Pruned {
		return current
	}
	deepest := current
	for _, c := range n.children {
		if c.Pruned {
			continue
		}
		if d := c.maxDepth(current + 1); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// PrunedLeaves returns the ids of every pruned leaf in the subtree.
func (n *Node) PrunedLeaves() []string {
	if n.Leaf() {
		if n.Pruned {
			return []string{n.ID}
		}
		return nil
	}
	var out []string
	for _, c := range n.children {
		out = append(out, c.PrunedLeaves()...)
	}
	return out
}

// HighlightBetween marks every unpruned node with an interval intersecting
// window as active and returns the tags of the active leaves below it.
// Each node's ActiveKeys receives the tags of the active leaves in its own
// subtree.
func (n *Node) HighlightBetween(window TimeRange) []string {
	var keys []string
	for _, c := range n.children {
		if c.Pruned {
			continue
		}
		keys = append(keys, c.HighlightBetween(window)...)
	}

	n.Active = false
	for _, t := range n.times {
		if t.Intersects(window) {
			n.Active = true
			break
		}
	}

	if n.Active && n.Leaf() {
		keys = append(keys, n.tags.Strings()...)
	}
	n.ActiveKeys = uniq(keys)
	return n.ActiveKeys
}

// ToTree exports the subtree as a read-only view. Pruned children are left
// out.
func (n *Node) ToTree() models.TreeNode {
	children := []models.TreeNode{}
	for _, c := range n.children {
		if !c.Pruned {
			children = append(children, c.ToTree())
		}
	}
	return models.TreeNode{
		ID:                      n.ID,
		Leaf:                    n.Leaf(),
		Children:                children,
		AverageDuration:         n.AverageDuration(),
		ModeStartHour:           n.ModeStartHour(),
		Area:                    n.Area(),
		DescendantIDs:           n.DescendantIDs(),
		AncestorIDs:             n.AncestorIDs(),
		SiblingAndDescendantIDs: n.SiblingAndDescendantIDs(),
	}
}

// Records flattens the whole subtree, pruned nodes included, into rows
// for persistence.
func (n *Node) Records(runID string) []models.NodeRecord {
	var out []models.NodeRecord
	n.records(runID, 0, &out)
	return out
}

func (n *Node) records(runID string, depth int, out *[]models.NodeRecord) {
	r := models.NodeRecord{
		RunID:           runID,
		NodeID:          n.ID,
		Depth:           depth,
		Leaf:            n.Leaf(),
		Pruned:          n.Pruned,
		Tags:            strings.Join(n.tags.Strings(), ","),
		TimeCount:       len(n.times),
		ShapeCount:      len(n.shapes),
		Area:            n.Area(),
		AverageDuration: n.AverageDuration(),
		ModeStartHour:   n.ModeStartHour(),
	}
	if n.parent != nil {
		r.ParentID = n.parent.ID
	}
	if center, err := n.Center(); err == nil {
		r.CenterLat = center.Lat
		r.CenterLon = center.Lon
		r.RadiusMeters, _ = n.Radius()
	}
	*out = append(*out, r)

	for _, c := range n.children {
		c.records(runID, depth+1, out)
	}
}

// Print writes an indented outline of the subtree, marking pruned nodes
// with [X].
func (n *Node) Print(w io.Writer) error {
	return n.print(w, 0)
}

func (n *Node) print(w io.Writer, indent int) error {
	mark := ""
	if n.Pruned {
		mark = "[X] "
	}
	if _, err := fmt.Fprintf(w, "%s%s<Cluster %s>\n", strings.Repeat("  - ", indent), mark, n.ID); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.print(w, indent+1); err != nil {
			return err
		}
	}
	return nil
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

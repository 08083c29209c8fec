package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/spatial"
	"github.com/jengzang/landuse-tree/internal/stats"
)

// Node is one vertex of the context tree: a leaf built from a visit
// cluster summary or the product of merging other nodes.
//
// A node owns its children. The parent link is a back-reference set once
// when the node is attached under a merge product.
type Node struct {
	ID string

	// Pruned marks the node and its subtree as removed from every derived
	// view. Only the pruner sets it.
	Pruned bool

	// Active and ActiveKeys are set by HighlightBetween.
	Active     bool
	ActiveKeys []string

	times    []TimeRange
	tags     TagSet
	shapes   []Shape
	gridSize int

	maxAccuracy float64

	children []*Node
	parent   *Node
	absorbed map[string]struct{}

	mu              sync.Mutex
	dirty           bool
	area            float64
	averageDuration float64
	modeStartHour   int
}

// Option configures a Node at construction.
type Option func(*Node)

// WithGridSize sets the sampling grid resolution used for the node's area
// and shape intersection estimates.
func WithGridSize(size int) Option {
	return func(n *Node) {
		n.gridSize = size
	}
}

// WithMaxAccuracy drops track points whose reported accuracy is worse than
// meters when a leaf derives its shape from points. Zero keeps every point.
func WithMaxAccuracy(meters float64) Option {
	return func(n *Node) {
		n.maxAccuracy = meters
	}
}

// NewEmpty returns a node with no times, tags or shapes.
func NewEmpty(id string, opts ...Option) *Node {
	n := &Node{
		ID:       id,
		gridSize: spatial.DefaultGridSize,
		absorbed: make(map[string]struct{}),
		dirty:    true,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewLeaf builds a leaf node from a cluster summary. The summary key is the
// node id; summaries without a key take the next id from ids.
func NewLeaf(s models.ClusterSummary, ids IDSource, opts ...Option) (*Node, error) {
	id := s.Key
	if id == "" {
		if ids == nil {
			return nil, fmt.Errorf("cluster: summary has no key and no id source was given")
		}
		id = ids.NextID()
	}
	n := NewEmpty(id, opts...)

	spans := s.Times
	if len(spans) == 0 {
		if span, ok := models.Span(s.Points); ok {
			spans = []models.TimeSpan{span}
		}
	}
	times := make([]TimeRange, 0, len(spans))
	for _, t := range spans {
		if t.End.Before(t.Start) {
			return nil, fmt.Errorf("%w: %s has %s..%s", ErrInvalidTimeRange, id,
				t.Start.Format(time.RFC3339), t.End.Format(time.RFC3339))
		}
		times = append(times, TimeRange{Start: t.Start, End: t.End})
	}
	n.times = coalesceTimes(times)

	keys := make([]string, 0, len(s.Tags))
	for k := range s.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make(TagSet, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, NewTag(k, s.Tags[k]...))
	}
	n.tags = tags.Union(nil)

	if len(s.LatLngs) > 0 {
		n.shapes = append(n.shapes, Shape(append([]spatial.Point(nil), s.LatLngs...)))
	} else if positions := models.Positions(s.Points, n.maxAccuracy); len(positions) > 0 {
		hull, err := spatial.LocationHull(positions)
		if err != nil {
			return nil, fmt.Errorf("cluster: hull of %s: %w", id, err)
		}
		n.shapes = append(n.shapes, Shape(hull))
	}
	for _, shape := range s.Shapes {
		if len(shape) > 0 && !containsShape(n.shapes, shape) {
			n.shapes = append(n.shapes, Shape(append([]spatial.Point(nil), shape...)))
		}
	}

	return n, nil
}

// Times returns a copy of the node's time intervals.
func (n *Node) Times() []TimeRange {
	return append([]TimeRange(nil), n.times...)
}

// Tags returns a copy of the node's tags.
func (n *Node) Tags() TagSet {
	return n.tags.clone()
}

// Shapes returns the node's geographic shapes. Callers must not modify them.
func (n *Node) Shapes() []Shape {
	return n.shapes
}

// GridSize returns the sampling grid resolution of the node.
func (n *Node) GridSize() int {
	return n.gridSize
}

// Coordinates returns every point of every shape.
func (n *Node) Coordinates() []spatial.Point {
	var out []spatial.Point
	for _, s := range n.shapes {
		out = append(out, s...)
	}
	return out
}

// MergeWith folds other into n: times are coalesced, tags unioned and
// intersecting shapes replaced by their convex hull. Merging a node with
// itself, with a node already merged into n, or with a node that already
// has a parent returns ErrInvalidMerge.
func (n *Node) MergeWith(other *Node) (*Node, error) {
	if other == nil || other == n || other.ID == n.ID {
		return nil, fmt.Errorf("%w: %s with itself", ErrInvalidMerge, n.ID)
	}
	if _, ok := n.absorbed[other.ID]; ok {
		return nil, fmt.Errorf("%w: %s already contains %s", ErrInvalidMerge, n.ID, other.ID)
	}
	if other.parent != nil {
		return nil, fmt.Errorf("%w: %s already belongs to %s", ErrInvalidMerge, other.ID, other.parent.ID)
	}

	shapes, err := mergeShapes(append(append([]Shape(nil), n.shapes...), other.shapes...), n.gridSize)
	if err != nil {
		return nil, fmt.Errorf("failed to merge shapes of %s and %s: %w", n.ID, other.ID, err)
	}

	n.times = coalesceTimes(append(append([]TimeRange(nil), n.times...), other.times...))
	n.tags = n.tags.Union(other.tags)
	n.shapes = shapes

	n.absorbed[other.ID] = struct{}{}
	for id := range other.absorbed {
		n.absorbed[id] = struct{}{}
	}

	n.mu.Lock()
	n.dirty = true
	n.mu.Unlock()

	return n, nil
}

// Absorbed reports whether a node with the given id was merged into n.
func (n *Node) Absorbed(id string) bool {
	_, ok := n.absorbed[id]
	return ok
}

// AddChild appends c to n's children. The caller sets c's parent.
func (n *Node) AddChild(c *Node) error {
	if c == n {
		return fmt.Errorf("%w: %s", ErrSelfReference, n.ID)
	}
	n.children = append(n.children, c)
	return nil
}

// SetParent sets the back-reference to p. It may be set only once.
func (n *Node) SetParent(p *Node) error {
	if p == n {
		return fmt.Errorf("%w: %s", ErrSelfReference, n.ID)
	}
	if n.parent != nil {
		return fmt.Errorf("%w: %s has parent %s", ErrParentAlreadySet, n.ID, n.parent.ID)
	}
	n.parent = p
	return nil
}

// Parent returns the node's parent, or nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the node's children in insertion order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Leaf reports whether the node has no children.
func (n *Node) Leaf() bool {
	return len(n.children) == 0
}

// Clone returns a deep copy of n's times, tags and shapes. Children and
// the parent link are not copied.
func (n *Node) Clone() *Node {
	c := NewEmpty(n.ID, WithGridSize(n.gridSize))
	c.Pruned = n.Pruned
	c.times = n.Times()
	c.tags = n.tags.clone()
	c.shapes = make([]Shape, len(n.shapes))
	for i, s := range n.shapes {
		c.shapes[i] = append(Shape(nil), s...)
	}
	for id := range n.absorbed {
		c.absorbed[id] = struct{}{}
	}
	return c
}

// Area returns the summed area in square meters of the node's shapes.
func (n *Node) Area() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refresh()
	return n.area
}

// AverageDuration returns the mean interval length in minutes.
func (n *Node) AverageDuration() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refresh()
	return n.averageDuration
}

// ModeStartHour returns the most common hour of day at which the node's
// intervals start.
func (n *Node) ModeStartHour() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refresh()
	return n.modeStartHour
}

// TotalDuration returns the summed length of the node's intervals.
func (n *Node) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range n.times {
		total += t.Duration()
	}
	return total
}

// refresh recomputes the cached statistics. n.mu must be held.
func (n *Node) refresh() {
	if !n.dirty {
		return
	}

	var area float64
	for _, s := range n.shapes {
		area += spatial.LocationArea(s, n.gridSize)
	}

	durations := make([]float64, len(n.times))
	hours := make([]int, len(n.times))
	for i, t := range n.times {
		durations[i] = t.Duration().Minutes()
		hours[i] = t.Start.Hour()
	}

	n.area = area
	n.averageDuration = stats.Mean(durations)
	n.modeStartHour = stats.Mode(hours)
	n.dirty = false
}

// Center returns the centroid of all of the node's coordinates.
func (n *Node) Center() (spatial.Point, error) {
	return spatial.LocationCentroid(n.Coordinates())
}

// Radius returns the largest distance in meters from the center to any of
// the node's coordinates.
func (n *Node) Radius() (float64, error) {
	center, err := n.Center()
	if err != nil {
		return 0, err
	}
	var r float64
	for _, p := range n.Coordinates() {
		if d := center.Distance(p); d > r {
			r = d
		}
	}
	return r, nil
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("<Cluster %s, children: %d, pruned: %t>", n.ID, len(n.children), n.Pruned)
}

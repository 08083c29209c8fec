package contexttree

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/metrics"
)

// State is the pruning state of a node.
type State int

const (
	StateUnvisited State = iota
	StateScored
	StatePruned
	StateRetained
)

func (s State) String() string {
	switch s {
	case StateScored:
		return "scored"
	case StatePruned:
		return "pruned"
	case StateRetained:
		return "retained"
	default:
		return "unvisited"
	}
}

// Summary describes the unpruned part of a pruned tree.
type Summary struct {
	AvgDistance      float64 `json:"avg_distance"`
	TotalInformation float64 `json:"total_information"`
}

// Pruner marks low-value subtrees of a context tree as pruned. A node is
// scored by utility over storage cost relative to its parent; a node with
// a retained child is always retained.
type Pruner struct {
	opts   PruneOptions
	metric *Metric
	logger *zap.Logger

	states map[*cluster.Node]State
}

// NewPruner validates opts. metric is needed only for the summary.
func NewPruner(opts PruneOptions, metric *Metric) (*Pruner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Summary && metric == nil {
		return nil, fmt.Errorf("%w: summary needs a distance metric", ErrInvalidParameter)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pruner{
		opts:   opts,
		metric: metric,
		logger: opts.Logger.Named("pruner"),
	}, nil
}

// Prune resets and recomputes the pruned flags of the tree under root. The
// root itself is never pruned. The summary is nil unless requested.
func (p *Pruner) Prune(ctx context.Context, root *cluster.Node) (*Summary, error) {
	if root == nil {
		return nil, ErrNoRoot
	}

	p.states = make(map[*cluster.Node]State)
	for _, n := range root.NodesArray(false) {
		n.Pruned = false
		p.states[n] = StateUnvisited
	}

	if _, _, err := p.visit(root); err != nil {
		return nil, err
	}
	p.states[root] = StateRetained

	pruned := 0
	for _, s := range p.states {
		if s == StatePruned {
			pruned++
		}
	}
	metrics.PrunedNodesTotal.Add(float64(pruned))
	p.logger.Info("Pruned context tree",
		zap.Float64("threshold", p.opts.Threshold),
		zap.Float64("xi", p.opts.Xi),
		zap.Int("pruned", pruned),
		zap.Int("unpruned", root.UnprunedCount()))

	if !p.opts.Summary {
		return nil, nil
	}
	return p.summarize(ctx, root)
}

// State returns the pruning state of n from the last Prune.
func (p *Pruner) State(n *cluster.Node) State {
	return p.states[n]
}

// visit scores n after its children. retained is true when n must be kept
// because one of its children was kept.
func (p *Pruner) visit(n *cluster.Node) (score float64, retained bool, err error) {
	anyRetained := false
	for _, c := range n.Children() {
		s, forced, err := p.visit(c)
		if err != nil {
			return 0, false, err
		}
		if forced || s >= p.opts.Threshold {
			p.states[c] = StateRetained
			anyRetained = true
			continue
		}
		c.Pruned = true
		p.states[c] = StatePruned
	}

	if anyRetained {
		p.states[n] = StateScored
		return 1, true, nil
	}

	score, err = p.CostBenefit(n)
	if err != nil {
		return 0, false, err
	}
	p.states[n] = StateScored
	return score, false, nil
}

// CostBenefit returns utility over storage cost of n against its parent.
func (p *Pruner) CostBenefit(n *cluster.Node) (float64, error) {
	u, err := Utility(n, n.Parent())
	if err != nil {
		return 0, err
	}
	c, err := StorageCost(n, n.Parent(), p.opts.Xi)
	if err != nil {
		return 0, err
	}
	return u / c, nil
}

// Utility is 1 for a root and otherwise one minus the mean of the time,
// area and tag ratios of n to parent, each capped at 1.
func Utility(n, parent *cluster.Node) (float64, error) {
	if parent == nil {
		return 1, nil
	}

	times := ratio(n.TotalDuration().Seconds(), parent.TotalDuration().Seconds())
	area := 0.0
	if parent.Area() > 0 {
		area = ratio(n.Area(), parent.Area())
	}
	tags := ratio(float64(len(n.Tags())), float64(len(parent.Tags())))

	u := 1 - (times+area+tags)/3
	if math.IsNaN(u) || u < 0 || u > 1 {
		return 0, fmt.Errorf("%w: %v for %s (times %v, area %v, tags %v)", ErrUtilityRange, u, n.ID, times, area, tags)
	}
	return u, nil
}

// ratio divides a by b, mapping 0/0 to 0 and capping the result at 1.
// Negative results are kept so that Utility reports them.
func ratio(a, b float64) float64 {
	r := a / b
	if math.IsNaN(r) {
		return 0
	}
	return math.Min(r, 1)
}

// StorageCost is xi plus the number of intervals, shapes and coordinates
// of n that its parent does not hold. A root costs xi.
func StorageCost(n, parent *cluster.Node, xi float64) (float64, error) {
	cost := xi
	if parent != nil {
		parentTimes := make(map[cluster.TimeRange]struct{})
		for _, t := range parent.Times() {
			parentTimes[cluster.TimeRange{Start: t.Start.UTC(), End: t.End.UTC()}] = struct{}{}
		}
		for _, t := range n.Times() {
			if _, ok := parentTimes[cluster.TimeRange{Start: t.Start.UTC(), End: t.End.UTC()}]; !ok {
				cost++
			}
		}

		parentShapes := make(map[string]struct{})
		for _, s := range parent.Shapes() {
			parentShapes[s.Key()] = struct{}{}
		}
		for _, s := range n.Shapes() {
			if _, ok := parentShapes[s.Key()]; !ok {
				cost++
			}
		}

		parentCoords := make(map[[2]float64]struct{})
		for _, c := range parent.Coordinates() {
			parentCoords[[2]float64{c.Lat, c.Lon}] = struct{}{}
		}
		for _, c := range n.Coordinates() {
			if _, ok := parentCoords[[2]float64{c.Lat, c.Lon}]; !ok {
				cost++
			}
		}
	}

	if math.IsNaN(cost) || cost <= 0 {
		return 0, fmt.Errorf("%w: %v for %s", ErrStorageCost, cost, n.ID)
	}
	return cost, nil
}

// summarize averages the distance over distinct unpruned node pairs and
// sums a third each of duration, area and tag count over unpruned nodes.
func (p *Pruner) summarize(ctx context.Context, root *cluster.Node) (*Summary, error) {
	nodes := root.NodesArray(true)

	sums := make([]float64, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, outer := range nodes {
		g.Go(func() error {
			var sum float64
			for _, inner := range nodes[i+1:] {
				d, err := p.metric.Distance(gctx, outer, inner)
				if err != nil {
					return err
				}
				sum += d
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to summarize tree: %w", err)
	}

	summary := &Summary{AvgDistance: 1}
	if pairs := len(nodes) * (len(nodes) - 1) / 2; pairs > 0 {
		var total float64
		for _, s := range sums {
			total += s
		}
		summary.AvgDistance = total / float64(pairs)
	}

	for _, n := range nodes {
		summary.TotalInformation += (n.TotalDuration().Seconds() + n.Area() + float64(len(n.Tags()))) / 3
	}
	return summary, nil
}

package contexttree

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/distance"
	"github.com/jengzang/landuse-tree/internal/metrics"
	"github.com/jengzang/landuse-tree/internal/models"
)

// Builder agglomerates leaf clusters into a context tree. Each round merges
// every group of nodes at the current minimum distance until one node, the
// root, remains.
type Builder struct {
	opts   Options
	metric *Metric
	logger *zap.Logger
	ids    *cluster.SequenceIDs

	leaves int
	active []*cluster.Node
	used   map[string]struct{}

	rounds   int
	diskMode bool
	root     *cluster.Node
}

// NewBuilder prepares a build over leaves. Leaf ids must be unique.
func NewBuilder(leaves []*cluster.Node, opts Options) (*Builder, error) {
	opts = opts.withDefaults()

	metric, err := NewMetric(opts.Lambda, opts.Similarity)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{}, len(leaves))
	for _, n := range leaves {
		if _, ok := used[n.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate cluster id %q", ErrInvalidParameter, n.ID)
		}
		used[n.ID] = struct{}{}
	}

	return &Builder{
		opts:   opts,
		metric: metric,
		logger: opts.Logger.Named("builder"),
		ids:    cluster.NewSequenceIDs(opts.IDPrefix),
		leaves: len(leaves),
		active: append([]*cluster.Node(nil), leaves...),
		used:   used,
	}, nil
}

// NewBuilderFromSummaries builds leaves from cluster summaries and prepares
// a build over them. Summaries without a key get a generated id.
func NewBuilderFromSummaries(summaries []models.ClusterSummary, opts Options) (*Builder, error) {
	opts = opts.withDefaults()
	ids := cluster.NewSequenceIDs("leaf-")

	leaves := make([]*cluster.Node, 0, len(summaries))
	for i, s := range summaries {
		n, err := cluster.NewLeaf(s, ids,
			cluster.WithGridSize(opts.GridSize),
			cluster.WithMaxAccuracy(opts.MaxAccuracy))
		if err != nil {
			return nil, fmt.Errorf("failed to build leaf %d: %w", i, err)
		}
		leaves = append(leaves, n)
	}
	return NewBuilder(leaves, opts)
}

// Metric returns the distance used by the builder.
func (b *Builder) Metric() *Metric {
	return b.metric
}

// Rounds returns the number of merge rounds run so far.
func (b *Builder) Rounds() int {
	return b.rounds
}

// DiskMode reports whether the last build kept distances on disk.
func (b *Builder) DiskMode() bool {
	return b.diskMode
}

// Root returns the root of the finished tree, or nil before Build.
func (b *Builder) Root() *cluster.Node {
	return b.root
}

// Build runs merge rounds until a single node remains and returns it.
func (b *Builder) Build(ctx context.Context) (root *cluster.Node, err error) {
	if b.root != nil {
		return b.root, nil
	}
	if len(b.active) == 0 {
		return nil, ErrNoClusters
	}

	start := time.Now()
	b.logger.Info("Building context tree",
		zap.Int("clusters", len(b.active)),
		zap.Float64("lambda", b.opts.Lambda))

	b.diskMode = b.opts.storeOptions().UsesDisk(len(b.active))
	store, err := distance.New(len(b.active), b.opts.storeOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create distance store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close distance store: %w", cerr)
		}
	}()

	var fresh map[string]struct{}
	for len(b.active) > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.ActiveNodes.Set(float64(len(b.active)))

		if err := b.refresh(ctx, store, fresh); err != nil {
			return nil, fmt.Errorf("round %d: %w", b.rounds+1, err)
		}

		groups, best, err := b.closestGroups(store)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", b.rounds+1, err)
		}

		before := len(b.active)
		fresh, err = b.merge(store, groups)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", b.rounds+1, err)
		}
		b.rounds++
		metrics.BuildRoundsTotal.Inc()

		b.logger.Debug("Merge round complete",
			zap.Int("round", b.rounds),
			zap.Float64("distance", best),
			zap.Int("groups", len(groups)),
			zap.Int("before", before),
			zap.Int("after", len(b.active)))
		if b.opts.Progress != nil {
			b.opts.Progress(RoundStats{
				Round:    b.rounds,
				Distance: best,
				Groups:   len(groups),
				Before:   before,
				After:    len(b.active),
			})
		}
	}
	metrics.ActiveNodes.Set(1)

	b.root = b.active[0]
	b.logger.Info("Context tree built",
		zap.String("root", b.root.ID),
		zap.Int("rounds", b.rounds),
		zap.Bool("disk", b.diskMode),
		zap.Duration("took", time.Since(start)))
	return b.root, nil
}

// refresh stores the distance of every active pair missing from the store.
// Outer node i is compared with the nodes after it; after the first round
// only pairs involving a fresh node are computed.
func (b *Builder) refresh(ctx context.Context, store distance.Store, fresh map[string]struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, outer := range b.active {
		_, outerFresh := fresh[outer.ID]

		// Each task writes only the row of its own outer node.
		g.Go(func() error {
			row, err := store.Get(outer.ID)
			if err != nil {
				return err
			}
			added := false
			for _, inner := range b.active[i+1:] {
				if _, innerFresh := fresh[inner.ID]; fresh != nil && !outerFresh && !innerFresh {
					continue
				}
				if _, ok := row[inner.ID]; ok {
					continue
				}
				d, err := b.metric.Distance(gctx, outer, inner)
				if err != nil {
					return err
				}
				row[inner.ID] = d
				added = true
			}
			if !added {
				return nil
			}
			return store.Set(outer.ID, row)
		})
	}
	return g.Wait()
}

// closestGroups returns every group of active nodes connected by a pair at
// the minimum stored distance. Groups and their members follow active set
// order.
func (b *Builder) closestGroups(store distance.Store) ([][]*cluster.Node, float64, error) {
	best, pairs, ok, err := distance.Min(store)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("no distances among %d active nodes", len(b.active))
	}

	position := make(map[string]int, len(b.active))
	for i, n := range b.active {
		position[n.ID] = i
	}

	uf := newUnionFind()
	for _, p := range pairs {
		if _, ok := position[p[0]]; !ok {
			return nil, 0, fmt.Errorf("stale distance row %q", p[0])
		}
		if _, ok := position[p[1]]; !ok {
			return nil, 0, fmt.Errorf("stale distance entry %q", p[1])
		}
		uf.union(p[0], p[1])
	}

	byRoot := make(map[string][]*cluster.Node)
	for _, n := range b.active {
		if !uf.has(n.ID) {
			continue
		}
		r := uf.find(n.ID)
		byRoot[r] = append(byRoot[r], n)
	}

	groups := make([][]*cluster.Node, 0, len(byRoot))
	for _, g := range byRoot {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return position[groups[i][0].ID] < position[groups[j][0].ID]
	})
	return groups, best, nil
}

// merge replaces each group with a new node built from copies of its
// members, attaches the members as its children and purges the members
// from the store. It returns the ids of the new nodes.
func (b *Builder) merge(store distance.Store, groups [][]*cluster.Node) (map[string]struct{}, error) {
	fresh := make(map[string]struct{}, len(groups))
	merged := make(map[string]struct{})
	var purge []string
	var created []*cluster.Node

	for _, group := range groups {
		node := cluster.NewEmpty(b.nextID(), cluster.WithGridSize(b.opts.GridSize))
		for _, member := range group {
			if _, err := node.MergeWith(member.Clone()); err != nil {
				return nil, err
			}
		}
		for _, member := range group {
			if err := node.AddChild(member); err != nil {
				return nil, err
			}
			if err := member.SetParent(node); err != nil {
				return nil, err
			}
			merged[member.ID] = struct{}{}
			purge = append(purge, member.ID)
		}
		fresh[node.ID] = struct{}{}
		created = append(created, node)
	}

	active := b.active[:0]
	for _, n := range b.active {
		if _, ok := merged[n.ID]; !ok {
			active = append(active, n)
		}
	}
	b.active = append(active, created...)

	if err := store.Delete(purge); err != nil {
		return nil, fmt.Errorf("failed to purge merged nodes: %w", err)
	}
	metrics.MergesTotal.Add(float64(len(groups)))
	return fresh, nil
}

func (b *Builder) nextID() string {
	for {
		id := b.ids.NextID()
		if _, ok := b.used[id]; !ok {
			b.used[id] = struct{}{}
			return id
		}
	}
}

// unionFind groups ids connected by minimum-distance pairs.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) has(x string) bool {
	_, ok := u.parent[x]
	return ok
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

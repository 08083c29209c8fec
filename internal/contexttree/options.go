package contexttree

import (
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/distance"
	"github.com/jengzang/landuse-tree/internal/similarity"
	"github.com/jengzang/landuse-tree/internal/spatial"
)

// DefaultIDPrefix prefixes the ids of merge products.
const DefaultIDPrefix = "cluster-"

// Options configures a Builder.
type Options struct {
	// Lambda weights semantic against feature similarity, in [0,1].
	Lambda float64
	// Similarity scores tag pairs. It may be nil when Lambda is 0.
	Similarity *similarity.Cache

	// GridSize is the sampling resolution for areas and overlaps.
	GridSize int
	// MaxAccuracy drops track points less accurate than this many meters
	// from leaf shapes. Zero keeps every point.
	MaxAccuracy float64
	// Workers bounds parallel distance computation.
	Workers int
	// DiskThreshold is the leaf count above which distances spill to disk.
	DiskThreshold int
	// ScratchDir holds the disk store's temporary directory.
	ScratchDir string
	// IDPrefix prefixes the ids given to merge products.
	IDPrefix string
	// Progress, when set, is called after every merge round.
	Progress func(RoundStats)

	Logger *zap.Logger
}

// RoundStats describes one finished merge round.
type RoundStats struct {
	Round    int
	Distance float64
	Groups   int
	Before   int
	After    int
}

func (o Options) withDefaults() Options {
	if o.GridSize <= 0 {
		o.GridSize = spatial.DefaultGridSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.DiskThreshold == 0 {
		o.DiskThreshold = distance.DefaultDiskThreshold
	}
	if o.IDPrefix == "" {
		o.IDPrefix = DefaultIDPrefix
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) storeOptions() distance.Options {
	return distance.Options{
		DiskThreshold: o.DiskThreshold,
		ScratchDir:    o.ScratchDir,
		Workers:       o.Workers,
		Logger:        o.Logger,
	}
}

// PruneOptions configures a Pruner.
type PruneOptions struct {
	// Threshold is the cost-benefit score below which a node is pruned.
	// Zero keeps every node.
	Threshold float64
	// Xi is the base storage cost of any node and must be positive.
	Xi float64
	// Summary requests average distance and total information over the
	// unpruned tree.
	Summary bool
	// Workers bounds parallel distance computation for the summary.
	Workers int

	Logger *zap.Logger
}

// Validate checks the pruning parameters.
func (o PruneOptions) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold < 0 {
		return fmt.Errorf("%w: prune threshold %v is negative", ErrInvalidParameter, o.Threshold)
	}
	if math.IsNaN(o.Xi) || o.Xi <= 0 {
		return fmt.Errorf("%w: xi %v must be positive", ErrInvalidParameter, o.Xi)
	}
	return nil
}

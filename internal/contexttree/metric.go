package contexttree

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/similarity"
	"github.com/jengzang/landuse-tree/internal/stats"
)

// Feature bucket widths.
const (
	durationBucket   = 15 // minutes
	timeOfDayBucket  = 4  // hours
	validCountBucket = 1
	areaBucket       = 10 // square meters
)

// Metric is the hybrid cluster distance
//
//	1 - (lambda*semantic + (1-lambda)*feature)
//
// where semantic is the best-alignment similarity of the two tag sets and
// feature is the Jaccard index of their bucketed feature sets.
type Metric struct {
	lambda float64
	sim    *similarity.Cache
}

// NewMetric returns a Metric. sim may be nil only when lambda is 0.
func NewMetric(lambda float64, sim *similarity.Cache) (*Metric, error) {
	if math.IsNaN(lambda) || lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("%w: lambda %v outside [0,1]", ErrInvalidParameter, lambda)
	}
	if lambda > 0 && sim == nil {
		return nil, fmt.Errorf("%w: lambda %v needs a similarity oracle", ErrInvalidParameter, lambda)
	}
	return &Metric{lambda: lambda, sim: sim}, nil
}

// Lambda returns the semantic weight.
func (m *Metric) Lambda() float64 {
	return m.lambda
}

// Distance returns the distance between a and b in [0,1]. The oracle is
// not consulted when lambda is 0 and features are not computed when
// lambda is 1.
func (m *Metric) Distance(ctx context.Context, a, b *cluster.Node) (float64, error) {
	var semantic, feature float64
	if m.lambda > 0 {
		s, err := m.semanticSimilarity(ctx, a.Tags().Strings(), b.Tags().Strings())
		if err != nil {
			return 0, err
		}
		semantic = s
	}
	if m.lambda < 1 {
		feature = jaccard(Features(a), Features(b))
	}
	return stats.Clamp(1-(m.lambda*semantic+(1-m.lambda)*feature), 0, 1), nil
}

// semanticSimilarity scores every tag of a against every tag of b and
// returns the larger of the two directional means of best matches.
func (m *Metric) semanticSimilarity(ctx context.Context, a, b []string) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}

	rowMax := make([]float64, len(a))
	colMax := make([]float64, len(b))
	for i, ta := range a {
		for j, tb := range b {
			s, err := m.sim.Similarity(ctx, ta, tb)
			if err != nil {
				return 0, fmt.Errorf("failed to compare %q and %q: %w", ta, tb, err)
			}
			rowMax[i] = math.Max(rowMax[i], s)
			colMax[j] = math.Max(colMax[j], s)
		}
	}
	return math.Max(stats.Mean(rowMax), stats.Mean(colMax)), nil
}

// Features returns the coarse feature set of a node: bucketed average
// duration, modal start hour, interval count and area.
func Features(n *cluster.Node) []string {
	return []string{
		"duration_" + formatBucket(stats.FloorTo(n.AverageDuration(), durationBucket)),
		"timeofday_" + formatBucket(stats.FloorTo(float64(n.ModeStartHour()), timeOfDayBucket)),
		"validcount_" + formatBucket(stats.FloorTo(float64(len(n.Times())), validCountBucket)),
		"area_" + formatBucket(stats.FloorTo(n.Area(), areaBucket)),
	}
}

func formatBucket(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func jaccard(a, b []string) float64 {
	set := make(map[string]int, len(a)+len(b))
	for _, s := range a {
		set[s] |= 1
	}
	for _, s := range b {
		set[s] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	shared := 0
	for _, v := range set {
		if v == 3 {
			shared++
		}
	}
	return float64(shared) / float64(len(set))
}

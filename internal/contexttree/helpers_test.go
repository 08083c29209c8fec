package contexttree

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/similarity"
	"github.com/jengzang/landuse-tree/internal/spatial"
)

var day = time.Date(2015, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func square(lat, lon, side float64) []spatial.Point {
	return []spatial.Point{
		{Lat: lat, Lon: lon},
		{Lat: lat, Lon: lon + side},
		{Lat: lat + side, Lon: lon + side},
		{Lat: lat + side, Lon: lon},
	}
}

func summary(key string, start, end time.Time, tags []string, latlngs []spatial.Point) models.ClusterSummary {
	s := models.ClusterSummary{
		Key:     key,
		Times:   []models.TimeSpan{{Start: start, End: end}},
		Tags:    map[string]models.TagValue{},
		LatLngs: latlngs,
	}
	for _, t := range tags {
		k, v, _ := strings.Cut(t, ":")
		s.Tags[k] = append(s.Tags[k], v)
	}
	return s
}

func leaves(t *testing.T, summaries ...models.ClusterSummary) []*cluster.Node {
	t.Helper()
	out := make([]*cluster.Node, len(summaries))
	for i, s := range summaries {
		n, err := cluster.NewLeaf(s, nil)
		require.NoError(t, err)
		out[i] = n
	}
	return out
}

var vocabulary = []string{
	"amenity:cafe", "amenity:pub", "amenity:fast_food", "leisure:park",
	"shop:bakery", "shop:supermarket", "building:university",
}

// syntheticSummaries returns n reproducible summaries spread over a grid
// of locations, every fourth one a small polygon.
func syntheticSummaries(n int) []models.ClusterSummary {
	rng := rand.New(rand.NewSource(42))
	out := make([]models.ClusterSummary, 0, n)
	for i := 0; i < n; i++ {
		s := models.ClusterSummary{
			Key:  fmt.Sprintf("n%02d", i),
			Tags: map[string]models.TagValue{},
		}

		for d := 0; d < 1+rng.Intn(3); d++ {
			start := day.Add(time.Duration(d*24+6+rng.Intn(14)) * time.Hour)
			s.Times = append(s.Times, models.TimeSpan{
				Start: start,
				End:   start.Add(time.Duration(15*(1+rng.Intn(8))) * time.Minute),
			})
		}

		for j := 0; j < 1+rng.Intn(2); j++ {
			k, v, _ := strings.Cut(vocabulary[rng.Intn(len(vocabulary))], ":")
			s.Tags[k] = models.TagValue{v}
		}

		lat, lon := 51.4+float64(i%10)*0.01, -0.2+float64(i/10)*0.01
		if i%4 == 0 {
			s.LatLngs = square(lat, lon, 0.0005)
		} else {
			s.LatLngs = []spatial.Point{{Lat: lat, Lon: lon}}
		}
		out = append(out, s)
	}
	return out
}

func keyValueCache(t *testing.T) *similarity.Cache {
	t.Helper()
	c, err := similarity.NewCache(similarity.KeyValueOracle{Words: similarity.TokenWords}, 0, similarity.FallbackPolicy{}, nil)
	require.NoError(t, err)
	return c
}

func childIDs(n *cluster.Node) []string {
	var ids []string
	for _, c := range n.Children() {
		ids = append(ids, c.ID)
	}
	return ids
}

package cluster

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/spatial"
)

var day = time.Date(2015, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func span(h1, m1, h2, m2 int) models.TimeSpan {
	return models.TimeSpan{Start: at(h1, m1), End: at(h2, m2)}
}

func square(lat, lon, side float64) []spatial.Point {
	return []spatial.Point{
		{Lat: lat, Lon: lon},
		{Lat: lat, Lon: lon + side},
		{Lat: lat + side, Lon: lon + side},
		{Lat: lat + side, Lon: lon},
	}
}

func leaf(t *testing.T, key string, times []models.TimeSpan, tags map[string]models.TagValue, latlngs []spatial.Point) *Node {
	t.Helper()
	n, err := NewLeaf(models.ClusterSummary{Key: key, Times: times, Tags: tags, LatLngs: latlngs}, nil)
	require.NoError(t, err)
	return n
}

func attach(t *testing.T, parent *Node, children ...*Node) {
	t.Helper()
	for _, c := range children {
		require.NoError(t, parent.AddChild(c))
		require.NoError(t, c.SetParent(parent))
	}
}

func assertDisjoint(t *testing.T, times []TimeRange) {
	t.Helper()
	for i := 1; i < len(times); i++ {
		assert.True(t, times[i-1].End.Before(times[i].Start),
			"intervals %d and %d overlap or touch", i-1, i)
	}
}

func TestNewLeaf(t *testing.T) {
	n := leaf(t, "w1",
		[]models.TimeSpan{span(12, 0, 13, 0), span(9, 0, 10, 0), span(9, 30, 11, 0)},
		map[string]models.TagValue{"cuisine": {"sandwich", "coffee"}, "amenity": {"cafe"}},
		square(51.5, -0.1, 0.001))

	assert.Equal(t, "w1", n.ID)
	assert.True(t, n.Leaf())
	require.Len(t, n.Times(), 2)
	assert.Equal(t, at(9, 0), n.Times()[0].Start)
	assert.Equal(t, at(11, 0), n.Times()[0].End)
	assertDisjoint(t, n.Times())
	assert.Equal(t, []string{"amenity:cafe", "cuisine:coffee;sandwich"}, n.Tags().Strings())
	assert.Len(t, n.Shapes(), 1)
}

func TestNewLeaf_Errors(t *testing.T) {
	_, err := NewLeaf(models.ClusterSummary{Key: "bad", Times: []models.TimeSpan{span(10, 0, 9, 0)}}, nil)
	require.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = NewLeaf(models.ClusterSummary{}, nil)
	require.Error(t, err)

	n, err := NewLeaf(models.ClusterSummary{}, NewSequenceIDs("anon-"))
	require.NoError(t, err)
	assert.Equal(t, "anon-1", n.ID)
}

func TestMergeWith_Invalid(t *testing.T) {
	a := leaf(t, "a", nil, nil, nil)
	b := leaf(t, "b", nil, nil, nil)

	_, err := a.MergeWith(a)
	require.ErrorIs(t, err, ErrInvalidMerge)

	_, err = a.MergeWith(a.Clone())
	require.ErrorIs(t, err, ErrInvalidMerge)

	_, err = a.MergeWith(b)
	require.NoError(t, err)
	assert.True(t, a.Absorbed("b"))

	_, err = a.MergeWith(b)
	require.ErrorIs(t, err, ErrInvalidMerge)

	p := NewEmpty("p")
	c := leaf(t, "c", nil, nil, nil)
	attach(t, p, c)
	_, err = a.MergeWith(c)
	require.ErrorIs(t, err, ErrInvalidMerge)
}

func TestMergeWith_Times(t *testing.T) {
	a := leaf(t, "a", []models.TimeSpan{span(9, 0, 10, 0), span(14, 0, 15, 0)}, nil, nil)
	b := leaf(t, "b", []models.TimeSpan{span(10, 0, 11, 0), span(12, 0, 13, 0)}, nil, nil)
	c := leaf(t, "c", []models.TimeSpan{span(12, 30, 14, 0)}, nil, nil)

	_, err := a.MergeWith(b)
	require.NoError(t, err)
	_, err = a.MergeWith(c)
	require.NoError(t, err)

	times := a.Times()
	require.Len(t, times, 2)
	assert.Equal(t, TimeRange{Start: at(9, 0), End: at(11, 0)}, times[0])
	assert.Equal(t, TimeRange{Start: at(12, 0), End: at(15, 0)}, times[1])
	assertDisjoint(t, times)
}

func TestMergeWith_Tags(t *testing.T) {
	a := leaf(t, "a", nil, map[string]models.TagValue{"amenity": {"cafe"}}, nil)
	b := leaf(t, "b", nil, map[string]models.TagValue{"amenity": {"cafe"}, "cuisine": {"b", "a"}}, nil)
	c := leaf(t, "c", nil, map[string]models.TagValue{"cuisine": {"a", "b"}}, nil)

	_, err := a.MergeWith(b)
	require.NoError(t, err)
	_, err = a.MergeWith(c)
	require.NoError(t, err)

	assert.Equal(t, []string{"amenity:cafe", "cuisine:a;b"}, a.Tags().Strings())
	assert.Equal(t, "cuisine:a;b", NewTag("cuisine", "b", "a", "b").String())
}

func TestMergeWith_Shapes(t *testing.T) {
	pt := spatial.Point{Lat: 51.5, Lon: -0.1}
	base := square(51.5, -0.1, 0.001)

	cases := []struct {
		name   string
		a, b   []spatial.Point
		shapes int
		points int
	}{
		{"EqualPoints", []spatial.Point{pt}, []spatial.Point{pt}, 1, 1},
		{"DistinctPoints", []spatial.Point{pt}, []spatial.Point{{Lat: 51.6, Lon: -0.1}}, 2, 0},
		{"PointInsideSquare", []spatial.Point{{Lat: 51.5005, Lon: -0.0995}}, square(51.5, -0.1, 0.001), 1, 4},
		{"DisjointSquares", square(51.5, -0.1, 0.001), square(51.6, -0.1, 0.001), 2, 0},
		{"OverlappingSquares", square(51.5, -0.1, 0.001), square(51.5005, -0.0995, 0.001), 1, 6},
		{"SharedCorner", base, square(base[2].Lat, base[2].Lon, 0.001), 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := leaf(t, "a", nil, nil, tc.a)
			b := leaf(t, "b", nil, nil, tc.b)
			_, err := a.MergeWith(b)
			require.NoError(t, err)
			require.Len(t, a.Shapes(), tc.shapes)
			if tc.points > 0 {
				assert.Len(t, a.Shapes()[0], tc.points)
			}
		})
	}
}

func TestStatsInvalidatedByMerge(t *testing.T) {
	a := leaf(t, "a", []models.TimeSpan{span(9, 0, 10, 0), span(11, 0, 11, 30)}, nil, square(51.5, -0.1, 0.001))
	assert.InDelta(t, 45.0, a.AverageDuration(), 1e-9)
	assert.Equal(t, 9, a.ModeStartHour())
	assert.Equal(t, 90*time.Minute, a.TotalDuration())
	assert.InDelta(t, spatial.LocationArea(square(51.5, -0.1, 0.001), spatial.DefaultGridSize), a.Area(), 1e-9)
	assert.Greater(t, a.Area(), 0.0)

	b := leaf(t, "b", []models.TimeSpan{span(17, 0, 17, 15), span(17, 30, 17, 45), span(18, 0, 18, 15)}, nil, nil)
	_, err := a.MergeWith(b)
	require.NoError(t, err)
	assert.InDelta(t, 27.0, a.AverageDuration(), 1e-9)
	assert.Equal(t, 17, a.ModeStartHour())
}

func TestAddChildAndSetParent(t *testing.T) {
	p := NewEmpty("p")
	c := NewEmpty("c")

	require.ErrorIs(t, p.AddChild(p), ErrSelfReference)
	require.ErrorIs(t, p.SetParent(p), ErrSelfReference)

	attach(t, p, c)
	assert.Same(t, p, c.Parent())
	assert.Equal(t, []*Node{c}, p.Children())
	require.ErrorIs(t, c.SetParent(NewEmpty("q")), ErrParentAlreadySet)
}

// tree builds r -> (a -> (a1, a2), b) with a2 pruned.
func tree(t *testing.T) (r, a, a1, a2, b *Node) {
	r, a, b = NewEmpty("r"), NewEmpty("a"), NewEmpty("b")
	a1, a2 = NewEmpty("a1"), NewEmpty("a2")
	attach(t, r, a, b)
	attach(t, a, a1, a2)
	a2.Pruned = true
	return
}

func TestTreeQueries(t *testing.T) {
	r, a, a1, a2, b := tree(t)

	assert.Equal(t, []string{"a", "a1", "b"}, r.DescendantIDs())
	assert.Equal(t, []string{"a", "r"}, a1.AncestorIDs())
	assert.Empty(t, r.AncestorIDs())
	assert.Equal(t, []string{"b"}, a.SiblingAndDescendantIDs())
	assert.Empty(t, a1.SiblingAndDescendantIDs())
	assert.Equal(t, []string{"a", "a1"}, b.SiblingAndDescendantIDs())

	assert.Equal(t, []*Node{r, a, a1, b}, r.NodesArray(true))
	assert.Equal(t, []*Node{r, a, a1, a2, b}, r.NodesArray(false))
	assert.Nil(t, a2.NodesArray(true))

	assert.Equal(t, 4, r.UnprunedCount())
	assert.Equal(t, 2, r.MaxDepth())
	assert.Equal(t, []string{"a2"}, r.PrunedLeaves())

	a1.Pruned = true
	assert.Equal(t, 1, r.MaxDepth())
}

func TestAncestorIDs_SkipsPrunedAncestors(t *testing.T) {
	r, a, _, a2, _ := tree(t)
	x := NewEmpty("x")
	attach(t, a2, x)
	x.Pruned = true

	assert.Equal(t, []string{"a", "r"}, x.AncestorIDs())

	a.Pruned = true
	assert.Equal(t, []string{"r"}, x.AncestorIDs())
	assert.Empty(t, r.AncestorIDs())
}

func TestWalkIsPostOrder(t *testing.T) {
	r, _, _, _, _ := tree(t)

	var order []string
	depths := map[string]int{}
	require.NoError(t, r.Walk(func(n *Node, depth int) error {
		order = append(order, n.ID)
		depths[n.ID] = depth
		return nil
	}))
	assert.Equal(t, []string{"a1", "a2", "a", "b", "r"}, order)
	assert.Equal(t, 2, depths["a2"])
}

func TestToTree(t *testing.T) {
	r, _, _, _, _ := tree(t)

	view := r.ToTree()
	assert.Equal(t, "r", view.ID)
	assert.False(t, view.Leaf)
	require.Len(t, view.Children, 2)
	require.Len(t, view.Children[0].Children, 1)
	assert.Equal(t, "a1", view.Children[0].Children[0].ID)
	assert.True(t, view.Children[0].Children[0].Leaf)
	assert.Equal(t, []string{"a", "r"}, view.Children[0].Children[0].AncestorIDs)
	assert.NotNil(t, view.Children[1].Children)
}

func TestRecords(t *testing.T) {
	r, _, _, _, _ := tree(t)

	records := r.Records("run-1")
	require.Len(t, records, 5)
	assert.Equal(t, "r", records[0].NodeID)
	assert.Empty(t, records[0].ParentID)
	assert.Equal(t, "a2", records[3].NodeID)
	assert.Equal(t, "a", records[3].ParentID)
	assert.Equal(t, 2, records[3].Depth)
	assert.True(t, records[3].Pruned)
	assert.Equal(t, "run-1", records[4].RunID)
}

func TestPrint(t *testing.T) {
	r, _, _, _, _ := tree(t)

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	assert.Equal(t, "<Cluster r>\n"+
		"  - <Cluster a>\n"+
		"  -   - <Cluster a1>\n"+
		"  -   - [X] <Cluster a2>\n"+
		"  - <Cluster b>\n", buf.String())
	assert.Equal(t, "<Cluster r, children: 2, pruned: false>", r.String())
}

func TestHighlightBetween(t *testing.T) {
	morning := leaf(t, "m", []models.TimeSpan{span(9, 0, 10, 0)}, map[string]models.TagValue{"amenity": {"cafe"}}, nil)
	evening := leaf(t, "e", []models.TimeSpan{span(19, 0, 21, 0)}, map[string]models.TagValue{"amenity": {"pub"}}, nil)
	root := NewEmpty("r")
	_, err := root.MergeWith(morning.Clone())
	require.NoError(t, err)
	_, err = root.MergeWith(evening.Clone())
	require.NoError(t, err)
	attach(t, root, morning, evening)

	keys := root.HighlightBetween(TimeRange{Start: at(9, 30), End: at(9, 45)})
	assert.Equal(t, []string{"amenity:cafe"}, keys)
	assert.True(t, root.Active)
	assert.True(t, morning.Active)
	assert.False(t, evening.Active)
	assert.Equal(t, keys, root.ActiveKeys)
}

func TestCloneIsIndependent(t *testing.T) {
	a := leaf(t, "a", []models.TimeSpan{span(9, 0, 10, 0)}, map[string]models.TagValue{"amenity": {"cafe"}}, square(51.5, -0.1, 0.001))
	c := a.Clone()
	attach(t, NewEmpty("p"), c)

	b := leaf(t, "b", []models.TimeSpan{span(12, 0, 13, 0)}, map[string]models.TagValue{"leisure": {"park"}}, nil)
	_, err := a.MergeWith(b)
	require.NoError(t, err)

	assert.Len(t, c.Times(), 1)
	assert.Len(t, c.Tags(), 1)
	assert.Nil(t, a.Parent())
	c.Shapes()[0][0].Lat = 0
	assert.Equal(t, 51.5, a.Shapes()[0][0].Lat)
}

func TestCenterAndRadius(t *testing.T) {
	a := leaf(t, "a", nil, nil, square(51.5, -0.1, 0.001))
	center, err := a.Center()
	require.NoError(t, err)
	assert.InDelta(t, 51.5005, center.Lat, 1e-9)
	assert.InDelta(t, -0.0995, center.Lon, 1e-9)

	r, err := a.Radius()
	require.NoError(t, err)
	assert.InDelta(t, 66, r, 3)

	_, err = NewEmpty("e").Center()
	require.ErrorIs(t, err, spatial.ErrDegenerateGeometry)
}

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("c")
	assert.Equal(t, "c1", ids.NextID())
	assert.Equal(t, "c2", ids.NextID())
}

func TestShapeKey(t *testing.T) {
	s := Shape{{Lat: 51.5, Lon: -0.1}, {Lat: 51.501, Lon: -0.1}}
	assert.Equal(t, "51.5,-0.1 51.501,-0.1", s.Key())
	assert.NotEqual(t, s.Key(), Shape{s[1], s[0]}.Key())
}

func TestNewLeaf_FromTrackPoints(t *testing.T) {
	var points []models.TrackPoint
	for i, p := range append(square(51.5, -0.1, 0.001), spatial.Point{Lat: 51.5005, Lon: -0.0995}) {
		points = append(points, models.TrackPoint{
			Latitude:  p.Lat,
			Longitude: p.Lon,
			Timestamp: at(9, 10*i),
		})
	}

	n, err := NewLeaf(models.ClusterSummary{Key: "v1", Points: points}, nil)
	require.NoError(t, err)

	require.Len(t, n.Times(), 1)
	assert.True(t, n.Times()[0].Start.Equal(at(9, 0)))
	assert.True(t, n.Times()[0].End.Equal(at(9, 40)))

	// The interior sample is not part of the hull.
	require.Len(t, n.Shapes(), 1)
	assert.Len(t, n.Shapes()[0], 4)
	assert.Greater(t, n.Area(), 0.0)
}

func TestNewLeaf_MaxAccuracy(t *testing.T) {
	coarse := 250.0
	fine := 5.0
	points := []models.TrackPoint{
		{Latitude: 51.5, Longitude: -0.1, Timestamp: at(9, 0), Accuracy: &fine},
		{Latitude: 51.5, Longitude: -0.099, Timestamp: at(9, 10), Accuracy: &fine},
		{Latitude: 51.501, Longitude: -0.099, Timestamp: at(9, 20), Accuracy: &fine},
		{Latitude: 51.52, Longitude: -0.09, Timestamp: at(9, 30), Accuracy: &coarse},
	}
	s := models.ClusterSummary{Key: "v1", Points: points}

	all, err := NewLeaf(s, nil)
	require.NoError(t, err)
	require.Len(t, all.Shapes(), 1)
	assert.Len(t, all.Shapes()[0], 4)

	filtered, err := NewLeaf(s, nil, WithMaxAccuracy(50))
	require.NoError(t, err)
	require.Len(t, filtered.Shapes(), 1)
	assert.Len(t, filtered.Shapes()[0], 3)
	assert.Less(t, filtered.Area(), all.Area())

	// Time coverage still uses every point.
	require.Len(t, filtered.Times(), 1)
	assert.True(t, filtered.Times()[0].End.Equal(at(9, 30)))
}

package distance

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

type StoreSuite struct {
	suite.Suite
	open  func(t *testing.T) Store
	store Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.open(s.T())
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreSuite) TestGetMissingDoesNotCreate() {
	row, err := s.store.Get("nope")
	s.Require().NoError(err)
	s.NotNil(row)
	s.Empty(row)
	s.Equal(0, s.store.Len())
}

func (s *StoreSuite) TestSetGetReturnsCopy() {
	s.Require().NoError(s.store.Set("a", Row{"b": 0.25, "c": 1}))

	row, err := s.store.Get("a")
	s.Require().NoError(err)
	s.Equal(Row{"b": 0.25, "c": 1}, row)

	row["b"] = 0.9
	again, err := s.store.Get("a")
	s.Require().NoError(err)
	s.Equal(0.25, again["b"])

	s.Require().NoError(s.store.Set("a", Row{"d": 0.5}))
	again, err = s.store.Get("a")
	s.Require().NoError(err)
	s.Equal(Row{"d": 0.5}, again)
	s.Equal(1, s.store.Len())
}

func (s *StoreSuite) TestDeletePurgesNestedEntries() {
	s.Require().NoError(s.store.Set("a", Row{"b": 0.1, "c": 0.2, "d": 0.3}))
	s.Require().NoError(s.store.Set("b", Row{"c": 0.4, "d": 0.5}))
	s.Require().NoError(s.store.Set("c", Row{"d": 0.6}))

	s.Require().NoError(s.store.Delete([]string{"b", "d", "missing"}))

	s.Equal(2, s.store.Len())
	a, err := s.store.Get("a")
	s.Require().NoError(err)
	s.Equal(Row{"c": 0.2}, a)
	c, err := s.store.Get("c")
	s.Require().NoError(err)
	s.Empty(c)
	b, err := s.store.Get("b")
	s.Require().NoError(err)
	s.Empty(b)
}

func (s *StoreSuite) TestEachIsSorted() {
	for _, id := range []string{"c", "a", "b"} {
		s.Require().NoError(s.store.Set(id, Row{"z": 1}))
	}

	var ids []string
	s.Require().NoError(s.store.Each(func(id string, row Row) error {
		ids = append(ids, id)
		s.Equal(Row{"z": 1}, row)
		return nil
	}))
	s.Equal([]string{"a", "b", "c"}, ids)

	stop := fmt.Errorf("stop")
	err := s.store.Each(func(string, Row) error { return stop })
	s.ErrorIs(err, stop)
}

func (s *StoreSuite) TestParallelSet() {
	var g errgroup.Group
	g.SetLimit(4)
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			return s.store.Set(fmt.Sprintf("n%02d", i), Row{"x": float64(i) / 40})
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(40, s.store.Len())

	row, err := s.store.Get("n07")
	s.Require().NoError(err)
	s.Equal(7.0/40, row["x"])
}

func (s *StoreSuite) TestMin() {
	_, _, ok, err := Min(s.store)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Set("a", Row{"b": 0.3, "c": 0.1}))
	s.Require().NoError(s.store.Set("b", Row{"c": 0.1}))

	best, pairs, ok, err := Min(s.store)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(0.1, best)
	s.Equal([][2]string{{"a", "c"}, {"b", "c"}}, pairs)
}

func (s *StoreSuite) TestClosed() {
	s.Require().NoError(s.store.Close())
	s.Require().NoError(s.store.Close())

	_, err := s.store.Get("a")
	s.ErrorIs(err, ErrStoreClosed)
	s.ErrorIs(s.store.Set("a", Row{}), ErrStoreClosed)
	s.ErrorIs(s.store.Delete([]string{"a"}), ErrStoreClosed)
	s.ErrorIs(s.store.Each(func(string, Row) error { return nil }), ErrStoreClosed)
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(*testing.T) Store {
		return NewMemoryStore(nil)
	}})
}

func TestDiskStore(t *testing.T) {
	suite.Run(t, &StoreSuite{open: func(t *testing.T) Store {
		s, err := NewDiskStore(Options{ScratchDir: t.TempDir(), Workers: 2})
		require.NoError(t, err)
		return s
	}})
}

func TestNewSelectsMode(t *testing.T) {
	opts := Options{DiskThreshold: 2, ScratchDir: t.TempDir()}

	mem, err := New(2, opts)
	require.NoError(t, err)
	defer mem.Close()
	assert.IsType(t, &MemoryStore{}, mem)
	assert.False(t, opts.UsesDisk(2))

	disk, err := New(3, opts)
	require.NoError(t, err)
	defer disk.Close()
	assert.IsType(t, &DiskStore{}, disk)
	assert.True(t, opts.UsesDisk(3))

	assert.False(t, Options{}.UsesDisk(DefaultDiskThreshold))
	assert.True(t, Options{}.UsesDisk(DefaultDiskThreshold+1))
}

func TestDiskStore_CloseRemovesScratch(t *testing.T) {
	s, err := NewDiskStore(Options{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Set("a", Row{"b": 0.5}))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Close())
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestDiskStore_CorruptRow(t *testing.T) {
	s, err := NewDiskStore(Options{ScratchDir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("a", Row{"b": 0.5}))
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), entries[0].Name()), []byte("garbage"), 0o600))

	_, err = s.Get("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt row a")
	require.Error(t, s.Delete([]string{"b"}))
}

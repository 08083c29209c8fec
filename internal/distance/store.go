package distance

import (
	"errors"
	"os"
	"runtime"
	"sort"

	"go.uber.org/zap"
)

// DefaultDiskThreshold is the cluster count above which the store spills
// rows to disk.
const DefaultDiskThreshold = 10000

// ErrStoreClosed is returned by every operation on a closed store.
var ErrStoreClosed = errors.New("distance: store is closed")

// Row maps an inner node id to its distance from the row's outer id.
type Row map[string]float64

// Clone returns a copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Store is a pairwise distance table keyed by outer then inner node id.
// Memory and disk implementations behave identically.
type Store interface {
	// Get returns a copy of the row for id. A missing id yields an empty
	// row and nothing is created.
	Get(id string) (Row, error)
	// Set replaces the row for id. Calls for different ids may run
	// concurrently.
	Set(id string, row Row) error
	// Delete removes the rows of ids and every entry for ids nested in
	// the remaining rows.
	Delete(ids []string) error
	// Each calls fn for every row in ascending id order.
	Each(fn func(id string, row Row) error) error
	// Len returns the number of rows.
	Len() int
	// Close releases the store. It is safe to call more than once.
	Close() error
}

// Options configures New.
type Options struct {
	// DiskThreshold is the cluster count above which rows are kept on
	// disk. Zero uses DefaultDiskThreshold; a negative value always uses
	// disk.
	DiskThreshold int
	// ScratchDir is the parent of the disk store's temporary directory.
	// Empty uses os.TempDir().
	ScratchDir string
	// Workers bounds the parallel file rewrites of the disk store. Zero
	// uses runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.DiskThreshold == 0 {
		o.DiskThreshold = DefaultDiskThreshold
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// UsesDisk reports whether a store for clusterCount clusters would be
// disk backed.
func (o Options) UsesDisk(clusterCount int) bool {
	o = o.withDefaults()
	return clusterCount > o.DiskThreshold
}

// New returns a disk-backed store when clusterCount exceeds the disk
// threshold and an in-memory store otherwise.
func New(clusterCount int, opts Options) (Store, error) {
	opts = opts.withDefaults()
	if clusterCount > opts.DiskThreshold {
		return NewDiskStore(opts)
	}
	return NewMemoryStore(opts.Logger), nil
}

// Min returns the smallest distance in the store and every (outer, inner)
// pair holding it, in row order. ok is false when the store holds no
// distances.
func Min(s Store) (best float64, pairs [][2]string, ok bool, err error) {
	err = s.Each(func(outer string, row Row) error {
		for _, inner := range sortedKeys(row) {
			d := row[inner]
			switch {
			case !ok || d < best:
				best, ok = d, true
				pairs = [][2]string{{outer, inner}}
			case d == best:
				pairs = append(pairs, [2]string{outer, inner})
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, false, err
	}
	return best, pairs, ok, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

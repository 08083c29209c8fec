package distance

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/landuse-tree/internal/metrics"
)

// DiskStore keeps one compressed file per row in a private scratch
// directory. Files are replaced by rename so a partially written row is
// never read.
type DiskStore struct {
	mu      sync.RWMutex
	dir     string
	files   map[string]string // row id -> file name
	next    int
	codec   *rowCodec
	workers int
	closed  bool
	logger  *zap.Logger
}

// NewDiskStore creates a disk store in a new directory under
// opts.ScratchDir.
func NewDiskStore(opts Options) (*DiskStore, error) {
	opts = opts.withDefaults()

	dir, err := os.MkdirTemp(opts.ScratchDir, "distance-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	codec, err := newRowCodec()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s := &DiskStore{
		dir:     dir,
		files:   make(map[string]string),
		codec:   codec,
		workers: opts.Workers,
		logger:  opts.Logger.Named("distance"),
	}
	s.logger.Info("Using disk-backed distance store", zap.String("dir", dir))
	return s, nil
}

// Dir returns the scratch directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) Get(id string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	name, ok := s.files[id]
	if !ok {
		return Row{}, nil
	}
	return s.readRow(id, name)
}

func (s *DiskStore) Set(id string, row Row) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	name, exists := s.files[id]
	if !exists {
		s.next++
		name = fmt.Sprintf("row-%08d.zst", s.next)
	}
	s.mu.Unlock()

	if err := s.writeRow(name, row); err != nil {
		return fmt.Errorf("failed to write row %s: %w", id, err)
	}

	if !exists {
		s.mu.Lock()
		s.files[id] = name
		metrics.StoreRows.WithLabelValues("disk").Set(float64(len(s.files)))
		s.mu.Unlock()
	}
	return nil
}

// Delete removes the files of ids, then reads every remaining row in
// parallel and rewrites the ones holding an entry for any of ids.
func (s *DiskStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	purge := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		purge[id] = struct{}{}
		name, ok := s.files[id]
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove row %s: %w", id, err)
		}
		delete(s.files, id)
	}

	var rewritten atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for id, name := range s.files {
		g.Go(func() error {
			row, err := s.readRow(id, name)
			if err != nil {
				return err
			}
			changed := false
			for k := range row {
				if _, ok := purge[k]; ok {
					delete(row, k)
					changed = true
				}
			}
			if !changed {
				return nil
			}
			if err := s.writeRow(name, row); err != nil {
				return fmt.Errorf("failed to rewrite row %s: %w", id, err)
			}
			rewritten.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	metrics.StoreRows.WithLabelValues("disk").Set(float64(len(s.files)))
	metrics.DiskRewritesTotal.Add(float64(rewritten.Load()))
	s.logger.Debug("Purged rows",
		zap.Int("ids", len(ids)),
		zap.Int("remaining", len(s.files)),
		zap.Int64("rewritten", rewritten.Load()))
	return nil
}

func (s *DiskStore) Each(fn func(id string, row Row) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	ids := sortedKeys(s.files)
	s.mu.RUnlock()

	for _, id := range ids {
		s.mu.RLock()
		name, ok := s.files[id]
		var row Row
		var err error
		if ok {
			row, err = s.readRow(id, name)
		}
		s.mu.RUnlock()

		if !ok {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(id, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *DiskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Close removes the scratch directory and everything in it.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.files = nil
	s.codec.close()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	s.logger.Debug("Removed scratch directory", zap.String("dir", s.dir))
	return nil
}

func (s *DiskStore) readRow(id, name string) (Row, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read row %s: %w", id, err)
	}
	row, err := s.codec.decode(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt row %s: %w", id, err)
	}
	return row, nil
}

func (s *DiskStore) writeRow(name string, row Row) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(s.codec.encode(row)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

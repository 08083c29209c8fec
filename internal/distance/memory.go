package distance

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/metrics"
)

// MemoryStore keeps every row in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[string]Row
	closed bool
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		rows:   make(map[string]Row),
		logger: logger.Named("distance"),
	}
}

func (s *MemoryStore) Get(id string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.rows[id].Clone(), nil
}

func (s *MemoryStore) Set(id string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.rows[id] = row.Clone()
	metrics.StoreRows.WithLabelValues("memory").Set(float64(len(s.rows)))
	return nil
}

func (s *MemoryStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	for _, id := range ids {
		delete(s.rows, id)
	}
	for _, row := range s.rows {
		for _, id := range ids {
			delete(row, id)
		}
	}
	metrics.StoreRows.WithLabelValues("memory").Set(float64(len(s.rows)))
	s.logger.Debug("Purged rows", zap.Int("ids", len(ids)), zap.Int("remaining", len(s.rows)))
	return nil
}

func (s *MemoryStore) Each(fn func(id string, row Row) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	ids := sortedKeys(s.rows)
	s.mu.RUnlock()

	for _, id := range ids {
		row, err := s.Get(id)
		if err != nil {
			return err
		}
		if err := fn(id, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rows = nil
	return nil
}

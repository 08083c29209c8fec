package cluster

import (
	"strconv"
	"sync/atomic"
)

// IDSource hands out identifiers for nodes produced by merges.
type IDSource interface {
	NextID() string
}

// SequenceIDs is an IDSource producing Prefix followed by an increasing
// counter starting at 1. The zero value uses no prefix.
type SequenceIDs struct {
	Prefix string
	next   atomic.Int64
}

// NewSequenceIDs returns a SequenceIDs with the given prefix.
func NewSequenceIDs(prefix string) *SequenceIDs {
	return &SequenceIDs{Prefix: prefix}
}

// NextID implements IDSource.
func (s *SequenceIDs) NextID() string {
	return s.Prefix + strconv.FormatInt(s.next.Add(1), 10)
}

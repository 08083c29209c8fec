package cluster

import "errors"

var (
	// ErrInvalidMerge indicates a node was merged with itself or with a node it already absorbed.
	ErrInvalidMerge = errors.New("cluster: invalid merge")
	// ErrSelfReference indicates a node was added as its own child.
	ErrSelfReference = errors.New("cluster: node cannot be its own child")
	// ErrParentAlreadySet indicates a second parent was assigned to a node.
	ErrParentAlreadySet = errors.New("cluster: parent already set")
	// ErrInvalidTimeRange indicates an interval that ends before it starts.
	ErrInvalidTimeRange = errors.New("cluster: time range ends before it starts")
)

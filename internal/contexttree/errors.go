package contexttree

import "errors"

var (
	// ErrInvalidParameter indicates a tuning parameter outside its domain.
	ErrInvalidParameter = errors.New("contexttree: invalid parameter")
	// ErrUtilityRange indicates a utility outside [0,1], which means the
	// node statistics are inconsistent.
	ErrUtilityRange = errors.New("contexttree: utility outside [0,1]")
	// ErrStorageCost indicates a non-positive storage cost.
	ErrStorageCost = errors.New("contexttree: storage cost must be positive")
	// ErrNoClusters indicates a build was started without any clusters.
	ErrNoClusters = errors.New("contexttree: no clusters to build from")
	// ErrNoRoot indicates pruning was requested before a tree was built.
	ErrNoRoot = errors.New("contexttree: no root node")
)

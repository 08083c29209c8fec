package spatial

import "errors"

// ErrDegenerateGeometry is returned when a hull or centroid is requested
// for an empty point set.
var ErrDegenerateGeometry = errors.New("spatial: at least one point is required")

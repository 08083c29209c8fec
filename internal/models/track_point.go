package models

import (
	"time"

	"github.com/jengzang/landuse-tree/internal/spatial"
)

// TrackPoint is a single GPS sample of a visit
type TrackPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"` // meters
}

// LatLng returns the position of the sample.
func (p TrackPoint) LatLng() spatial.Point {
	return spatial.Point{Lat: p.Latitude, Lon: p.Longitude}
}

// Positions returns the positions of the samples, skipping those whose
// reported accuracy is worse than maxAccuracy. maxAccuracy <= 0 keeps all.
func Positions(points []TrackPoint, maxAccuracy float64) []spatial.Point {
	out := make([]spatial.Point, 0, len(points))
	for _, p := range points {
		if maxAccuracy > 0 && p.Accuracy != nil && *p.Accuracy > maxAccuracy {
			continue
		}
		out = append(out, p.LatLng())
	}
	return out
}

// Span returns the earliest and latest timestamps of the samples.
func Span(points []TrackPoint) (TimeSpan, bool) {
	if len(points) == 0 {
		return TimeSpan{}, false
	}
	span := TimeSpan{Start: points[0].Timestamp, End: points[0].Timestamp}
	for _, p := range points[1:] {
		if p.Timestamp.Before(span.Start) {
			span.Start = p.Timestamp
		}
		if p.Timestamp.After(span.End) {
			span.End = p.Timestamp
		}
	}
	return span, true
}

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jengzang/landuse-tree/internal/spatial"
)

// ClusterSummary is a merged/summarised visit cluster as produced by the
// visit extraction stage. It is the leaf input of the context tree.
type ClusterSummary struct {
	// Key identifies the real-world feature the cluster was matched to
	// (e.g. an OSM way "w1234"). Empty for anonymous clusters.
	Key string `json:"key,omitempty"`

	Times []TimeSpan `json:"times"`

	// Tags maps a tag key to one or more values.
	Tags map[string]TagValue `json:"tags,omitempty"`

	// LatLngs is the cluster's primary shape: a ring of points or a single point.
	LatLngs []spatial.Point `json:"latlngs,omitempty"`
	// Shapes holds any additional shapes.
	Shapes [][]spatial.Point `json:"shapes,omitempty"`

	// Points are the raw samples of the visit. They stand in for LatLngs
	// (as their hull) and Times (as their span) when those are missing.
	Points []TrackPoint `json:"points,omitempty"`
}

// TimeSpan is a closed time interval.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TagValue holds the value(s) of a tag. It decodes from a JSON string,
// number, boolean or array of those.
type TagValue []string

// UnmarshalJSON implements json.Unmarshaler.
func (v *TagValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch val := raw.(type) {
	case []interface{}:
		out := make(TagValue, 0, len(val))
		for _, e := range val {
			out = append(out, scalarString(e))
		}
		*v = out
	case nil:
		*v = nil
	default:
		*v = TagValue{scalarString(val)}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(s)
	}
}

// DecodeSummaries reads summaries from JSON. Both an array of summaries and
// an object keyed by cluster key are accepted; object entries without a key
// take the object key. Object input is returned in key order.
func DecodeSummaries(data []byte) ([]ClusterSummary, error) {
	var list []ClusterSummary
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode cluster summaries: %w", err)
		}
		return list, nil
	}

	var keyed map[string]ClusterSummary
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("failed to decode cluster summaries: %w", err)
	}

	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list = make([]ClusterSummary, 0, len(keys))
	for _, k := range keys {
		s := keyed[k]
		if s.Key == "" {
			s.Key = k
		}
		list = append(list, s)
	}
	return list, nil
}

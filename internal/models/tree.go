package models

import "time"

// TreeNode is the read-only export view of a context tree node. Only
// unpruned children are included.
type TreeNode struct {
	ID                      string     `json:"id"`
	Leaf                    bool       `json:"leaf"`
	Children                []TreeNode `json:"children"`
	AverageDuration         float64    `json:"average_duration"` // minutes
	ModeStartHour           int        `json:"mode_starthour"`
	Area                    float64    `json:"area"` // square meters
	DescendantIDs           []string   `json:"descendant_ids"`
	AncestorIDs             []string   `json:"ancestor_ids"`
	SiblingAndDescendantIDs []string   `json:"sibling_and_descendant_ids"`
}

// NodeRecord is a flattened, persisted context tree node.
type NodeRecord struct {
	ID              int64   `json:"id" db:"id"`
	RunID           string  `json:"run_id" db:"run_id"`
	NodeID          string  `json:"node_id" db:"node_id"`
	ParentID        string  `json:"parent_id,omitempty" db:"parent_id"`
	Depth           int     `json:"depth" db:"depth"`
	Leaf            bool    `json:"leaf" db:"leaf"`
	Pruned          bool    `json:"pruned" db:"pruned"`
	Tags            string  `json:"tags,omitempty" db:"tags"` // comma separated key:value pairs
	TimeCount       int     `json:"time_count" db:"time_count"`
	ShapeCount      int     `json:"shape_count" db:"shape_count"`
	Area            float64 `json:"area" db:"area"`
	AverageDuration float64 `json:"average_duration" db:"average_duration"`
	ModeStartHour   int     `json:"mode_starthour" db:"mode_starthour"`
	CenterLat       float64 `json:"center_lat" db:"center_lat"`
	CenterLon       float64 `json:"center_lon" db:"center_lon"`
	RadiusMeters    float64 `json:"radius_meters" db:"radius_meters"`
}

// BuildParams are the tunable parameters of one context tree build.
type BuildParams struct {
	Lambda         float64 `json:"lambda"`
	PruneThreshold float64 `json:"prune_threshold"`
	Xi             float64 `json:"xi"`
	Summary        bool    `json:"summary"`
	Oracle         string  `json:"oracle,omitempty"` // exact, keyvalue or table
}

// BuildRun records one context tree build.
type BuildRun struct {
	ID     string `json:"id" db:"id"`
	Status string `json:"status" db:"status"`

	// Input parameters
	Lambda         float64 `json:"lambda" db:"lambda"`
	PruneThreshold float64 `json:"prune_threshold" db:"prune_threshold"`
	Xi             float64 `json:"xi" db:"xi"`
	Oracle         string  `json:"oracle,omitempty" db:"oracle"`

	// Execution info
	LeafCount  int  `json:"leaf_count" db:"leaf_count"`
	RoundCount int  `json:"round_count" db:"round_count"`
	DiskMode   bool `json:"disk_mode" db:"disk_mode"`

	// Results
	UnprunedCount    int       `json:"unpruned_count" db:"unpruned_count"`
	MaxDepth         int       `json:"max_depth" db:"max_depth"`
	AvgDistance      *float64  `json:"avg_distance,omitempty" db:"avg_distance"`
	TotalInformation *float64  `json:"total_information,omitempty" db:"total_information"`
	ErrorMessage     string    `json:"error_message,omitempty" db:"error_message"`
	Tree             *TreeNode `json:"tree,omitempty" db:"tree_json"`

	// Metadata
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunStatus constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

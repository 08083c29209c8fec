package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/landuse-tree/internal/database"
	"github.com/jengzang/landuse-tree/internal/models"
)

// ErrRunNotFound is returned when a build run does not exist.
var ErrRunNotFound = errors.New("repository: build run not found")

const runColumns = `
	id, status, lambda, prune_threshold, xi, oracle, leaf_count, round_count,
	disk_mode, unpruned_count, max_depth, avg_distance, total_information,
	error_message, tree_json, created_at, started_at, completed_at`

// TreeRepository handles database operations for context tree builds
type TreeRepository struct {
	db *sql.DB
}

// NewTreeRepository creates a new tree repository
func NewTreeRepository(db *sql.DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// CreateRun inserts a pending build run. CreatedAt is set when zero.
func (r *TreeRepository) CreateRun(run *models.BuildRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	query := `
		INSERT INTO build_runs (
			id, status, lambda, prune_threshold, xi, oracle, leaf_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		run.ID,
		run.Status,
		run.Lambda,
		run.PruneThreshold,
		run.Xi,
		run.Oracle,
		run.LeafCount,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create build run: %w", err)
	}
	return nil
}

// MarkRunning marks a run as running
func (r *TreeRepository) MarkRunning(id string) error {
	query := `UPDATE build_runs SET status = ?, started_at = ? WHERE id = ?`
	return r.update(id, "mark build run as running", query,
		models.RunStatusRunning, time.Now().UnixMilli(), id)
}

// MarkCompleted stores the results of a finished run
func (r *TreeRepository) MarkCompleted(run *models.BuildRun) error {
	var treeJSON *string
	if run.Tree != nil {
		data, err := json.Marshal(run.Tree)
		if err != nil {
			return fmt.Errorf("failed to serialize tree: %w", err)
		}
		s := string(data)
		treeJSON = &s
	}

	now := time.Now().UTC()
	query := `
		UPDATE build_runs
		SET status = ?, round_count = ?, disk_mode = ?, unpruned_count = ?,
			max_depth = ?, avg_distance = ?, total_information = ?,
			tree_json = ?, completed_at = ?
		WHERE id = ?
	`
	if err := r.update(run.ID, "mark build run as completed", query,
		models.RunStatusCompleted,
		run.RoundCount,
		run.DiskMode,
		run.UnprunedCount,
		run.MaxDepth,
		run.AvgDistance,
		run.TotalInformation,
		treeJSON,
		now.UnixMilli(),
		run.ID,
	); err != nil {
		return err
	}

	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	return nil
}

// MarkFailed marks a run as failed with an error message
func (r *TreeRepository) MarkFailed(id string, errorMessage string) error {
	query := `UPDATE build_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`
	return r.update(id, "mark build run as failed", query,
		models.RunStatusFailed, errorMessage, time.Now().UnixMilli(), id)
}

func (r *TreeRepository) update(id, action, query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run, including its exported tree
func (r *TreeRepository) GetRun(id string) (*models.BuildRun, error) {
	query := `SELECT ` + runColumns + ` FROM build_runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRow(query, id), true)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, without their trees
func (r *TreeRepository) ListRuns(status string, limit int, offset int) ([]*models.BuildRun, error) {
	query := `SELECT ` + runColumns + ` FROM build_runs WHERE 1=1`

	args := []interface{}{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list build runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.BuildRun{}
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, withTree bool) (*models.BuildRun, error) {
	var (
		run         models.BuildRun
		avgDistance sql.NullFloat64
		totalInfo   sql.NullFloat64
		treeJSON    sql.NullString
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)

	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.Lambda,
		&run.PruneThreshold,
		&run.Xi,
		&run.Oracle,
		&run.LeafCount,
		&run.RoundCount,
		&run.DiskMode,
		&run.UnprunedCount,
		&run.MaxDepth,
		&avgDistance,
		&totalInfo,
		&run.ErrorMessage,
		&treeJSON,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if avgDistance.Valid {
		run.AvgDistance = &avgDistance.Float64
	}
	if totalInfo.Valid {
		run.TotalInformation = &totalInfo.Float64
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.StartedAt = millisPtr(startedAt)
	run.CompletedAt = millisPtr(completedAt)

	if withTree && treeJSON.Valid {
		var tree models.TreeNode
		if err := json.Unmarshal([]byte(treeJSON.String), &tree); err != nil {
			return nil, fmt.Errorf("failed to decode tree of run %s: %w", run.ID, err)
		}
		run.Tree = &tree
	}

	return &run, nil
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// SaveNodes replaces the flattened nodes of a run in one transaction
func (r *TreeRepository) SaveNodes(runID string, nodes []models.NodeRecord) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM tree_nodes WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear tree nodes: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO tree_nodes (
				run_id, node_id, parent_id, depth, leaf, pruned, tags,
				time_count, shape_count, area, average_duration, mode_starthour,
				center_lat, center_lon, radius_meters
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, n := range nodes {
			_, err := stmt.Exec(
				runID,
				n.NodeID,
				n.ParentID,
				n.Depth,
				n.Leaf,
				n.Pruned,
				n.Tags,
				n.TimeCount,
				n.ShapeCount,
				n.Area,
				n.AverageDuration,
				n.ModeStartHour,
				n.CenterLat,
				n.CenterLon,
				n.RadiusMeters,
			)
			if err != nil {
				return fmt.Errorf("failed to insert tree node %s: %w", n.NodeID, err)
			}
		}
		return nil
	})
}

// GetNodes retrieves the flattened nodes of a run in insertion (pre-order)
// order. prunedFilter restricts the result when non-nil.
func (r *TreeRepository) GetNodes(runID string, prunedFilter *bool) ([]models.NodeRecord, error) {
	query := `
		SELECT id, run_id, node_id, parent_id, depth, leaf, pruned, tags,
			   time_count, shape_count, area, average_duration, mode_starthour,
			   center_lat, center_lon, radius_meters
		FROM tree_nodes
		WHERE run_id = ?
	`
	args := []interface{}{runID}
	if prunedFilter != nil {
		query += " AND pruned = ?"
		args = append(args, *prunedFilter)
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tree nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.NodeRecord{}
	for rows.Next() {
		var n models.NodeRecord
		err := rows.Scan(
			&n.ID,
			&n.RunID,
			&n.NodeID,
			&n.ParentID,
			&n.Depth,
			&n.Leaf,
			&n.Pruned,
			&n.Tags,
			&n.TimeCount,
			&n.ShapeCount,
			&n.Area,
			&n.AverageDuration,
			&n.ModeStartHour,
			&n.CenterLat,
			&n.CenterLon,
			&n.RadiusMeters,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tree node: %w", err)
		}
		nodes = append(nodes, n)
	}

	return nodes, rows.Err()
}

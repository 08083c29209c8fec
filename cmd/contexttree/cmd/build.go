package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/contexttree"
	"github.com/jengzang/landuse-tree/internal/database"
	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/repository"
	"github.com/jengzang/landuse-tree/internal/service"
	"github.com/jengzang/landuse-tree/internal/similarity"
)

func readSummaries(path string, stdin io.Reader) ([]models.ClusterSummary, error) {
	r := stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open summaries: %w", err)
		}
		defer f.Close()
		r = f
	}
	return service.LoadSummaries(r)
}

// runRecorded goes through the service so the run is stored like an API build.
func runRecorded(ctx context.Context, summaries []models.ClusterSummary) (models.TreeNode, error) {
	db, err := database.Open(database.Config{Path: dbPath}, zlog)
	if err != nil {
		return models.TreeNode{}, err
	}
	defer db.Close()

	if err := database.Migrate(db, zlog); err != nil {
		return models.TreeNode{}, err
	}

	svc, err := service.NewTreeService(repository.NewTreeRepository(db), cfg.Tree, zlog)
	if err != nil {
		return models.TreeNode{}, err
	}
	result, err := svc.Run(ctx, summaries, buildParams())
	if err != nil {
		return models.TreeNode{}, err
	}
	zlog.Info("Run recorded", zap.String("id", result.ID), zap.String("db", dbPath))
	return *result.Tree, nil
}

// runInMemory builds and prunes without a database and returns the root.
func runInMemory(ctx context.Context, summaries []models.ClusterSummary) (*cluster.Node, error) {
	params := buildParams()
	svc, err := service.NewTreeService(nil, cfg.Tree, zlog)
	if err != nil {
		return nil, err
	}
	if err := svc.ValidateParams(params); err != nil {
		return nil, err
	}

	var cache *similarity.Cache
	if params.Lambda > 0 {
		o, err := svc.Oracle(params.Oracle)
		if err != nil {
			return nil, err
		}
		if cache, err = similarity.NewCache(o, cfg.Tree.SimilarityCacheSize, cfg.Tree.FallbackPolicy(), zlog); err != nil {
			return nil, err
		}
	}

	opts := cfg.Tree.BuilderOptions(params.Lambda, cache, zlog)
	opts.Progress = func(s contexttree.RoundStats) {
		zlog.Info("Round",
			zap.Int("round", s.Round),
			zap.Float64("distance", s.Distance),
			zap.Int("active", s.After))
	}
	builder, err := contexttree.NewBuilderFromSummaries(summaries, opts)
	if err != nil {
		return nil, err
	}
	root, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	pruner, err := contexttree.NewPruner(contexttree.PruneOptions{
		Threshold: params.PruneThreshold,
		Xi:        params.Xi,
		Summary:   params.Summary,
		Workers:   cfg.Tree.Workers,
		Logger:    zlog,
	}, builder.Metric())
	if err != nil {
		return nil, err
	}
	sum, err := pruner.Prune(ctx, root)
	if err != nil {
		return nil, err
	}
	if sum != nil {
		zlog.Info("Summary",
			zap.Float64("avg_distance", sum.AvgDistance),
			zap.Float64("total_information", sum.TotalInformation))
	}
	zlog.Info("Pruned leaves", zap.Strings("ids", root.PrunedLeaves()))
	return root, nil
}

// writeJSON writes v indented to path, or to w when path is empty.
func writeJSON(path string, w io.Writer, v interface{}) error {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/config"
	"github.com/jengzang/landuse-tree/internal/contexttree"
	"github.com/jengzang/landuse-tree/internal/metrics"
	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/repository"
	"github.com/jengzang/landuse-tree/internal/similarity"
)

// Oracle names accepted in build parameters.
const (
	OracleExact    = "exact"
	OracleKeyValue = "keyvalue"
	OracleTable    = "table"
)

// ErrBuildFailed wraps the cause of a run that was recorded as failed.
var ErrBuildFailed = errors.New("service: build failed")

// TreeService runs context tree builds and stores their results
type TreeService struct {
	repo   *repository.TreeRepository
	cfg    config.TreeConfig
	table  *similarity.TableOracle
	logger *zap.Logger
}

// NewTreeService creates a tree service. The similarity table is loaded
// once when cfg names one.
func NewTreeService(repo *repository.TreeRepository, cfg config.TreeConfig, logger *zap.Logger) (*TreeService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TreeService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("service"),
	}

	if cfg.SimilarityTable != "" {
		f, err := os.Open(cfg.SimilarityTable)
		if err != nil {
			return nil, fmt.Errorf("failed to open similarity table: %w", err)
		}
		defer f.Close()

		s.table, err = similarity.LoadTable(f)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded similarity table",
			zap.String("path", cfg.SimilarityTable),
			zap.Int("pairs", s.table.Len()))
	}
	return s, nil
}

// LoadSummaries decodes cluster summaries from r.
func LoadSummaries(r io.Reader) ([]models.ClusterSummary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster summaries: %w", err)
	}
	return models.DecodeSummaries(data)
}

// DefaultParams returns the configured build parameters.
func (s *TreeService) DefaultParams() models.BuildParams {
	return s.cfg.Params()
}

// Oracle returns the tag similarity oracle registered under name.
func (s *TreeService) Oracle(name string) (similarity.Oracle, error) {
	switch name {
	case OracleExact:
		return similarity.ExactOracle{}, nil
	case OracleKeyValue, "":
		return similarity.KeyValueOracle{Words: similarity.TokenWords}, nil
	case OracleTable:
		if s.table == nil {
			return nil, fmt.Errorf("%w: no similarity table configured", contexttree.ErrInvalidParameter)
		}
		return s.table, nil
	default:
		return nil, fmt.Errorf("%w: unknown similarity oracle %q", contexttree.ErrInvalidParameter, name)
	}
}

// ValidateParams checks build parameters before a run is recorded.
func (s *TreeService) ValidateParams(params models.BuildParams) error {
	if math.IsNaN(params.Lambda) || params.Lambda < 0 || params.Lambda > 1 {
		return fmt.Errorf("%w: lambda %v outside [0,1]", contexttree.ErrInvalidParameter, params.Lambda)
	}
	if err := (contexttree.PruneOptions{Threshold: params.PruneThreshold, Xi: params.Xi}).Validate(); err != nil {
		return err
	}
	if _, err := s.Oracle(params.Oracle); err != nil {
		return err
	}
	return nil
}

// Run builds, prunes and stores one context tree. Invalid parameters are
// rejected before anything is recorded; later failures are recorded on the
// run and returned wrapped in ErrBuildFailed together with the run.
func (s *TreeService) Run(ctx context.Context, summaries []models.ClusterSummary, params models.BuildParams) (*models.BuildRun, error) {
	if err := s.ValidateParams(params); err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, contexttree.ErrNoClusters
	}
	if params.Oracle == "" {
		params.Oracle = OracleKeyValue
	}

	run := &models.BuildRun{
		ID:             uuid.NewString(),
		Status:         models.RunStatusPending,
		Lambda:         params.Lambda,
		PruneThreshold: params.PruneThreshold,
		Xi:             params.Xi,
		Oracle:         params.Oracle,
		LeafCount:      len(summaries),
	}
	if err := s.repo.CreateRun(run); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRunning(run.ID); err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("run", run.ID))
	start := time.Now()
	err := s.execute(ctx, run, summaries, params, logger)
	metrics.BuildDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.BuildsTotal.WithLabelValues(models.RunStatusFailed).Inc()
		logger.Error("Build failed", zap.Error(err))
		if mErr := s.repo.MarkFailed(run.ID, err.Error()); mErr != nil {
			logger.Error("Failed to record build failure", zap.Error(mErr))
		}
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		return run, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	metrics.BuildsTotal.WithLabelValues(models.RunStatusCompleted).Inc()
	logger.Info("Build completed",
		zap.Int("leaves", run.LeafCount),
		zap.Int("rounds", run.RoundCount),
		zap.Int("unpruned", run.UnprunedCount),
		zap.Duration("took", time.Since(start)))
	return run, nil
}

func (s *TreeService) execute(ctx context.Context, run *models.BuildRun, summaries []models.ClusterSummary, params models.BuildParams, logger *zap.Logger) error {
	var cache *similarity.Cache
	if params.Lambda > 0 {
		oracle, err := s.Oracle(params.Oracle)
		if err != nil {
			return err
		}
		cache, err = similarity.NewCache(oracle, s.cfg.SimilarityCacheSize, s.cfg.FallbackPolicy(), logger)
		if err != nil {
			return err
		}
	}

	builder, err := contexttree.NewBuilderFromSummaries(summaries, s.cfg.BuilderOptions(params.Lambda, cache, logger))
	if err != nil {
		return err
	}
	root, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	pruner, err := contexttree.NewPruner(contexttree.PruneOptions{
		Threshold: params.PruneThreshold,
		Xi:        params.Xi,
		Summary:   params.Summary,
		Workers:   s.cfg.Workers,
		Logger:    logger,
	}, builder.Metric())
	if err != nil {
		return err
	}
	summary, err := pruner.Prune(ctx, root)
	if err != nil {
		return err
	}

	tree := root.ToTree()
	run.RoundCount = builder.Rounds()
	run.DiskMode = builder.DiskMode()
	run.UnprunedCount = root.UnprunedCount()
	run.MaxDepth = root.MaxDepth()
	run.Tree = &tree
	if summary != nil {
		run.AvgDistance = &summary.AvgDistance
		run.TotalInformation = &summary.TotalInformation
	}
	if cache != nil {
		st := cache.Stats()
		logger.Debug("Similarity cache",
			zap.Int64("lookups", st.Lookups),
			zap.Int64("hits", st.Hits),
			zap.Int64("absent", st.Absent),
			zap.Int64("fallbacks", st.Fallbacks))
	}

	if err := s.repo.SaveNodes(run.ID, root.Records(run.ID)); err != nil {
		return err
	}
	return s.repo.MarkCompleted(run)
}

// GetRun retrieves a run with its tree
func (s *TreeService) GetRun(id string) (*models.BuildRun, error) {
	return s.repo.GetRun(id)
}

// ListRuns retrieves runs with an optional status filter
func (s *TreeService) ListRuns(status string, limit int, offset int) ([]*models.BuildRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListRuns(status, limit, offset)
}

// GetNodes retrieves the flattened nodes of a run
func (s *TreeService) GetNodes(runID string, prunedFilter *bool) ([]models.NodeRecord, error) {
	if _, err := s.repo.GetRun(runID); err != nil {
		return nil, err
	}
	return s.repo.GetNodes(runID, prunedFilter)
}

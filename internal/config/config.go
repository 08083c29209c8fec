package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/contexttree"
	"github.com/jengzang/landuse-tree/internal/distance"
	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/similarity"
	"github.com/jengzang/landuse-tree/internal/spatial"
)

// Config 应用配置
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string
	LogLevel  string
	LogFormat string
	RateLimit int // requests per minute per client

	Tree TreeConfig
}

// TreeConfig holds the default context tree parameters.
type TreeConfig struct {
	Lambda              float64
	PruneThreshold      float64
	Xi                  float64
	DiskThreshold       int
	GridSize            int
	MaxPointAccuracy    float64 // meters; 0 keeps every track point
	Workers             int
	ScratchDir          string
	Oracle              string // exact, keyvalue or table
	SimilarityTable     string // JSON file used by the table oracle
	SimilarityCacheSize int
	MaxFallbackFraction float64
	MinFallbackSamples  int
}

// Load 加载配置
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", ":8080"),
		DBPath:    getEnv("DB_PATH", "./data/landuse/trees.db"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		RateLimit: getEnvAsInt("RATE_LIMIT", 60),
		Tree: TreeConfig{
			Lambda:              getEnvAsFloat("TREE_LAMBDA", 0.5),
			PruneThreshold:      getEnvAsFloat("PRUNE_THRESHOLD", 0.1),
			Xi:                  getEnvAsFloat("PRUNE_XI", 1.0),
			DiskThreshold:       getEnvAsInt("DISK_THRESHOLD", distance.DefaultDiskThreshold),
			GridSize:            getEnvAsInt("GRID_SIZE", spatial.DefaultGridSize),
			MaxPointAccuracy:    getEnvAsFloat("MAX_POINT_ACCURACY", 0),
			Workers:             getEnvAsInt("WORKERS", runtime.NumCPU()),
			ScratchDir:          getEnv("SCRATCH_DIR", os.TempDir()),
			Oracle:              getEnv("SIMILARITY_ORACLE", "keyvalue"),
			SimilarityTable:     getEnv("SIMILARITY_TABLE", ""),
			SimilarityCacheSize: getEnvAsInt("SIMILARITY_CACHE_SIZE", similarity.DefaultCacheSize),
			MaxFallbackFraction: getEnvAsFloat("MAX_FALLBACK_FRACTION", 1.0),
			MinFallbackSamples:  getEnvAsInt("MIN_FALLBACK_SAMPLES", 100),
		},
	}
}

// Params returns the default build parameters.
func (t TreeConfig) Params() models.BuildParams {
	return models.BuildParams{
		Lambda:         t.Lambda,
		PruneThreshold: t.PruneThreshold,
		Xi:             t.Xi,
		Oracle:         t.Oracle,
	}
}

// Validate checks the defaults the same way a build checks its parameters.
func (t TreeConfig) Validate() error {
	if t.Lambda < 0 || t.Lambda > 1 {
		return fmt.Errorf("%w: TREE_LAMBDA %v outside [0,1]", contexttree.ErrInvalidParameter, t.Lambda)
	}
	if err := (contexttree.PruneOptions{Threshold: t.PruneThreshold, Xi: t.Xi}).Validate(); err != nil {
		return err
	}
	if t.GridSize <= 0 {
		return fmt.Errorf("%w: GRID_SIZE %d must be positive", contexttree.ErrInvalidParameter, t.GridSize)
	}
	if t.MaxPointAccuracy < 0 {
		return fmt.Errorf("%w: MAX_POINT_ACCURACY %v is negative", contexttree.ErrInvalidParameter, t.MaxPointAccuracy)
	}
	return nil
}

// BuilderOptions maps the configuration onto builder options for one run.
func (t TreeConfig) BuilderOptions(lambda float64, sim *similarity.Cache, logger *zap.Logger) contexttree.Options {
	return contexttree.Options{
		Lambda:        lambda,
		Similarity:    sim,
		GridSize:      t.GridSize,
		MaxAccuracy:   t.MaxPointAccuracy,
		Workers:       t.Workers,
		DiskThreshold: t.DiskThreshold,
		ScratchDir:    t.ScratchDir,
		Logger:        logger,
	}
}

// FallbackPolicy returns the oracle failure policy.
func (t TreeConfig) FallbackPolicy() similarity.FallbackPolicy {
	return similarity.FallbackPolicy{
		MaxFraction: t.MaxFallbackFraction,
		MinSamples:  t.MinFallbackSamples,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

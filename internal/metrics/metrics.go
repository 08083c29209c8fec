package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Builder metrics
	BuildRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contexttree_build_rounds_total",
		Help: "Total number of merge rounds run by the context tree builder",
	})

	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contexttree_merges_total",
		Help: "Total number of merged node groups",
	})

	ActiveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contexttree_active_nodes",
		Help: "Number of nodes still active in the current build",
	})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "contexttree_build_duration_seconds",
		Help:    "Time taken to build and prune one context tree",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
	})

	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contexttree_builds_total",
		Help: "Total number of builds by final status",
	}, []string{"status"})

	// Distance store metrics
	StoreRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "contexttree_distance_store_rows",
		Help: "Number of rows held by the distance store",
	}, []string{"mode"})

	DiskRewritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contexttree_distance_disk_rewrites_total",
		Help: "Total number of row files rewritten by disk-mode invalidation",
	})

	// Similarity oracle metrics
	OracleLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contexttree_oracle_lookups_total",
		Help: "Tag similarity lookups by result (hit, miss, absent, fallback)",
	}, []string{"result"})

	// Pruner metrics
	PrunedNodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contexttree_pruned_nodes_total",
		Help: "Total number of nodes marked pruned",
	})
)

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jengzang/landuse-tree/internal/config"
	"github.com/jengzang/landuse-tree/internal/logger"
	"github.com/jengzang/landuse-tree/internal/models"
)

var (
	cfg  = config.Load()
	zlog = zap.NewNop()

	inPath    string
	outPath   string
	dbPath    string
	lambda    float64
	threshold float64
	xi        float64
	oracle    string
	summary   bool
	printTree bool
)

var rootCmd = &cobra.Command{
	Use:   "contexttree",
	Short: "Build and prune a land-usage context tree",
	Long: `contexttree reads visit cluster summaries as JSON, merges them bottom-up into a
context tree, prunes low-value subtrees and writes the exported tree as JSON.

With --db the run is recorded in a sqlite database the same way the HTTP API
records builds. Defaults come from the same environment variables as the server.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		zlog = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zlog.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := readSummaries(inPath, cmd.InOrStdin())
		if err != nil {
			return err
		}

		var tree models.TreeNode
		if dbPath != "" {
			tree, err = runRecorded(cmd.Context(), summaries)
			if err != nil {
				return err
			}
		} else {
			root, err := runInMemory(cmd.Context(), summaries)
			if err != nil {
				return err
			}
			if printTree {
				if err := root.Print(cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			tree = root.ToTree()
		}
		return writeJSON(outPath, cmd.OutOrStdout(), tree)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&inPath, "in", "i", "", "cluster summaries JSON file (default stdin)")
	flags.StringVarP(&outPath, "out", "o", "", "write the JSON result here (default stdout)")
	flags.StringVar(&dbPath, "db", "", "record the run in this sqlite database")
	flags.Float64Var(&lambda, "lambda", cfg.Tree.Lambda, "semantic weight in [0,1]")
	flags.Float64Var(&threshold, "threshold", cfg.Tree.PruneThreshold, "prune threshold")
	flags.Float64Var(&xi, "xi", cfg.Tree.Xi, "base storage cost")
	flags.StringVar(&oracle, "oracle", cfg.Tree.Oracle, "tag similarity oracle: exact, keyvalue or table")
	flags.BoolVar(&summary, "summary", false, "log average distance and total information")
	flags.BoolVarP(&printTree, "print", "p", false, "print an outline of the tree to stderr (in-memory runs only)")
}

func buildParams() models.BuildParams {
	return models.BuildParams{
		Lambda:         lambda,
		PruneThreshold: threshold,
		Xi:             xi,
		Summary:        summary,
		Oracle:         oracle,
	}
}

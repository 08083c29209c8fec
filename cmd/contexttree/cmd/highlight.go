package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/contexttree"
)

var between string

// HighlightResult lists what was active during a time window.
type HighlightResult struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Tags      []string  `json:"tags"`
	ActiveIDs []string  `json:"active_ids"`
}

var highlightCmd = &cobra.Command{
	Use:   "highlight",
	Short: "Show which places were active during a time window",
	Long: `highlight builds and prunes the tree in memory, then marks every unpruned node
with a visit overlapping --between as active. It writes the tags of the active
leaves and the ids of all active nodes as JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath != "" {
			return errors.New("highlight does not record runs; drop --db")
		}
		window, err := parseWindow(between)
		if err != nil {
			return err
		}

		summaries, err := readSummaries(inPath, cmd.InOrStdin())
		if err != nil {
			return err
		}
		root, err := runInMemory(cmd.Context(), summaries)
		if err != nil {
			return err
		}

		result := HighlightResult{
			Start:     window.Start,
			End:       window.End,
			Tags:      root.HighlightBetween(window),
			ActiveIDs: []string{},
		}
		if result.Tags == nil {
			result.Tags = []string{}
		}
		for _, n := range root.NodesArray(true) {
			if n.Active {
				result.ActiveIDs = append(result.ActiveIDs, n.ID)
			}
		}
		if printTree {
			if err := root.Print(cmd.ErrOrStderr()); err != nil {
				return err
			}
		}
		return writeJSON(outPath, cmd.OutOrStdout(), result)
	},
}

// parseWindow reads "start,end" as two RFC3339 timestamps.
func parseWindow(s string) (cluster.TimeRange, error) {
	from, to, ok := strings.Cut(s, ",")
	if !ok {
		return cluster.TimeRange{}, fmt.Errorf("%w: --between wants start,end, got %q", contexttree.ErrInvalidParameter, s)
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(from))
	if err != nil {
		return cluster.TimeRange{}, fmt.Errorf("%w: --between start: %v", contexttree.ErrInvalidParameter, err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(to))
	if err != nil {
		return cluster.TimeRange{}, fmt.Errorf("%w: --between end: %v", contexttree.ErrInvalidParameter, err)
	}
	if end.Before(start) {
		return cluster.TimeRange{}, fmt.Errorf("%w: --between ends before it starts", cluster.ErrInvalidTimeRange)
	}
	return cluster.TimeRange{Start: start, End: end}, nil
}

func init() {
	highlightCmd.Flags().StringVarP(&between, "between", "b", "", "time window as start,end in RFC3339")
	_ = highlightCmd.MarkFlagRequired("between")
	rootCmd.AddCommand(highlightCmd)
}

package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/prequery/prequery-preprocess/internal/adapters/driven/config/file"
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage/sqlite"
	"github.com/prequery/prequery-preprocess/internal/core/services"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent preprocessing runs",
	Long: `Lists runs recorded with --history (or history = true in the user
configuration file), newest first, together with their unresolved queries.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", services.DefaultHistoryLimit, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	config, err := file.NewConfigStore(flagConfig)
	if err != nil {
		return err
	}
	path := flagHistoryFile
	if path == "" {
		path = config.GetString(configHistoryFile)
	}

	store, err := sqlite.NewStore(path)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	runs, err := services.NewHistoryService(store).Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "JOB", "STATE", "STARTED", "RESOLVED", "FAILED", "CANCELLED", "DURATION")
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		t.Row(
			id,
			r.Job,
			string(r.State),
			r.StartedAt.Local().Format(time.DateTime),
			fmt.Sprint(r.Succeeded),
			fmt.Sprint(r.Failed),
			fmt.Sprint(r.Cancelled),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	cmd.Println(t.String())

	for _, r := range runs {
		for _, f := range r.Failures {
			cmd.Printf("%s %s: %s\n", r.RunID[:min(8, len(r.RunID))], describe(f), failureMessage(f))
		}
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echolab/transcriptor/pkg/history"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past transcription jobs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "l", 20, "maximum number of jobs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.List(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No jobs recorded yet.")
		return nil
	}

	fmt.Printf("%-10s %-19s %-10s %-8s %-7s %s\n", "ID", "FINISHED", "STATE", "SEGMENTS", "FAILED", "NAME")
	for _, r := range records {
		fmt.Printf("%-10s %-19s %-10s %-8d %-7d %s\n",
			r.ID,
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.State,
			r.SegmentCount,
			r.Failed,
			r.Name,
		)
	}
	return nil
}

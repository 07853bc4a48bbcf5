package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/bqualhato/cnpjdata/internal/db"
)

var historyLimit int

// statsCmd prints row counts for the loaded tables and, optionally, the
// recent load-log history.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts for every table in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := db.TableCounts(cmd.Context(), getDB())
		if err != nil {
			return fmt.Errorf("failed to count rows: %w", err)
		}

		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)

		var total int64
		for _, t := range tables {
			fmt.Printf("%-20s %12d\n", t, counts[t])
			total += counts[t]
		}
		fmt.Printf("%-20s %12d\n", "total", total)

		if historyLimit <= 0 {
			return nil
		}
		events, err := db.ArchiveHistory(cmd.Context(), getDB(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to query load log: %w", err)
		}
		fmt.Printf("\n--- Load Log (last %d) ---\n", historyLimit)
		fmt.Printf("%-35s | %-10s | %-20s | %10s | %10s | %s\n",
			"Archive", "Event", "Timestamp (UTC)", "Rows", "Duration", "Message")
		for _, ev := range events {
			rows := ""
			if ev.RowCount >= 0 {
				rows = fmt.Sprintf("%d", ev.RowCount)
			}
			fmt.Printf("%-35s | %-10s | %-20s | %10s | %10s | %s\n",
				ev.Archive, ev.Event, ev.Timestamp.Format(time.DateTime),
				rows, ev.Duration.Round(time.Millisecond), ev.Message)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&historyLimit, "history", 0, "Also show the most recent N load-log events.")
}

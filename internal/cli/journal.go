package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"edgeagent/internal/model"
	"edgeagent/internal/repository"
	"edgeagent/internal/repository/sqlite"
)

var recentLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the delivery journal",
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize journaled deliveries by status and channel",
	Args:  cobra.NoArgs,
	RunE: withJournal(func(cmd *cobra.Command, repo repository.DeliveryRepository) error {
		stats, err := repo.GetStats()
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	}),
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently settled deliveries",
	Args:  cobra.NoArgs,
	RunE: withJournal(func(cmd *cobra.Command, repo repository.DeliveryRepository) error {
		deliveries, err := repo.GetRecent(recentLimit)
		if err != nil {
			return err
		}
		printDeliveries(cmd.OutOrStdout(), deliveries)
		return nil
	}),
}

var journalClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every journaled delivery",
	Args:  cobra.NoArgs,
	RunE: withJournal(func(cmd *cobra.Command, repo repository.DeliveryRepository) error {
		count, err := repo.GetTotalCount()
		if err != nil {
			return err
		}
		if err := repo.DeleteAll(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d deliveries.\n", count)
		return nil
	}),
}

// withJournal opens the configured journal database around fn.
func withJournal(fn func(cmd *cobra.Command, repo repository.DeliveryRepository) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JournalPath == "" {
			return fmt.Errorf("no journal configured (JOURNAL_PATH is empty)")
		}
		db, err := sqlite.New(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd, sqlite.NewDeliveryRepository(db))
	}
}

func printStats(out io.Writer, stats *model.DeliveryStats) {
	if stats.Total == 0 {
		fmt.Fprintln(out, "No deliveries journaled.")
		return
	}

	fmt.Fprintf(out, "Total:        %d\n", stats.Total)
	fmt.Fprintf(out, "Avg latency:  %v\n", stats.AvgLatency)
	fmt.Fprintf(out, "Last settled: %s\n\n", stats.LastSettled.Local().Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintln(w, "------\t-----")
	for _, status := range sortedKeys(stats.PerStatus) {
		fmt.Fprintf(w, "%s\t%d\n", status, stats.PerStatus[status])
	}
	fmt.Fprintln(w, "\t")
	fmt.Fprintln(w, "CHANNEL\tCOUNT")
	fmt.Fprintln(w, "-------\t-----")
	for _, channel := range sortedKeys(stats.PerChannel) {
		fmt.Fprintf(w, "%s\t%d\n", channel, stats.PerChannel[channel])
	}
	w.Flush()
}

func printDeliveries(out io.Writer, deliveries []model.Delivery) {
	if len(deliveries) == 0 {
		fmt.Fprintln(out, "No deliveries journaled.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CONTEXT\tCHANNEL\tSTATUS\tLATENCY\tSETTLED\tDETAIL")
	fmt.Fprintln(w, "-------\t-------\t------\t-------\t-------\t------")
	for _, d := range deliveries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\t%s\n", d.Context, d.Channel, d.Status, d.Latency(),
			d.SettledAt.Local().Format("2006-01-02 15:04:05"), d.Detail)
	}
	w.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func init() {
	journalRecentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 20, "number of deliveries to show")
	journalCmd.AddCommand(journalStatsCmd, journalRecentCmd, journalClearCmd)
	rootCmd.AddCommand(journalCmd)
}

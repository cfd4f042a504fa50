package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long:  "Display station counts by geocode status, per-source last sync times, and recent sync runs.",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("syncs", 10, "Number of recent sync runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	counts, err := st.CountByGeocodeStatus(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	cmd.Printf("Stations: %d\n", total)
	for _, status := range []model.GeocodeStatus{
		model.GeocodePending, model.GeocodeMatched, model.GeocodeUnmatched, model.GeocodeManual,
	} {
		if n := counts[status]; n > 0 {
			cmd.Printf("  %-10s %d\n", status, n)
		}
	}

	cmd.Println("\nLast successful sync:")
	for _, source := range []string{"nmdpra", "pcngi", "osm", "manual"} {
		last, err := st.LastSuccess(ctx, source)
		if err != nil {
			return err
		}
		if last == nil {
			cmd.Printf("  %-8s never\n", source)
			continue
		}
		cmd.Printf("  %-8s %s\n", source, last.Format(time.RFC3339))
	}

	limit, _ := cmd.Flags().GetInt("syncs")
	syncs, err := st.ListSyncs(ctx, limit)
	if err != nil {
		return err
	}
	if len(syncs) > 0 {
		cmd.Println("\nRecent sync runs:")
		for _, s := range syncs {
			cmd.Printf("  #%-4d %-8s %-9s rows=%-6d %s",
				s.ID, s.Source, s.Status, s.RowsSynced, s.StartedAt.Format(time.RFC3339))
			if s.Error != "" {
				cmd.Printf("  error=%s", s.Error)
			}
			cmd.Println()
		}
	}

	return nil
}

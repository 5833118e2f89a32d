package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pacmirror/internal/probe"
)

var (
	statusRegion string
	statusLimit  int
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded probe history",
		Long: `Show probe results recorded by previous probe runs, newest first.
Results can be narrowed to a single region.`,
		Example: `  pacmirror status
  pacmirror status --region Germany
  pacmirror status --region Germany --limit 10`,
		RunE: statusRun,
	}

	cmd.Flags().StringVar(&statusRegion, "region", "", "only show results for this region")
	cmd.Flags().IntVar(&statusLimit, "limit", 50, "maximum number of results to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	records, err := st.ListProbeResults(statusRegion, statusLimit)
	if err != nil {
		return fmt.Errorf("listing probe results: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no probe results recorded")
		return nil
	}

	total, err := st.CountProbeResults(statusRegion)
	if err != nil {
		return fmt.Errorf("counting probe results: %w", err)
	}

	for _, rec := range records {
		latencyText := "timeout"
		if rec.LatencyMs != probe.LatencyTimeout {
			latencyText = fmt.Sprintf("%.1fms", rec.LatencyMs)
		}
		fmt.Printf("%s  %-20s %-60s latency=%-8s speed=%.2f MiB/s\n",
			rec.ProbedAt.Format("2006-01-02 15:04:05"),
			rec.Region, rec.URL, latencyText, rec.SpeedBps/1024/1024)
	}

	fmt.Printf("\n%d of %d results shown\n", len(records), total)
	return nil
}

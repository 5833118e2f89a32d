package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pacmirror/internal/probe"
	"pacmirror/internal/store"
)

var (
	probeRegions string
	probeNoSave  bool
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Measure mirror latency and throughput",
		Long: `Measure ICMP latency and download throughput for mirrors, one region
at a time. Each mirror is probed at most once per invocation; results are
recorded in the probe-history store unless --no-save is given.

A mirror that blocks ICMP reports a latency of -1; a mirror whose download
probe cannot complete reports a speed of 0. Neither is an error.`,
		Example: `  pacmirror probe --region Germany
  pacmirror probe --region Germany,Sweden --no-save
  pacmirror probe`,
		RunE: probeRun,
	}

	cmd.Flags().StringVar(&probeRegions, "region", "", "comma-separated regions to probe (default: all)")
	cmd.Flags().BoolVar(&probeNoSave, "no-save", false, "do not record results in the probe-history store")

	return cmd
}

func probeRun(cmd *cobra.Command, args []string) error {
	if err := globalLoader.Load(cmd.Context(), offline); err != nil {
		return fmt.Errorf("loading mirror data: %w", err)
	}

	var names []string
	if probeRegions != "" {
		names = strings.Split(probeRegions, ",")
		for i, name := range names {
			names[i] = strings.TrimSpace(name)
		}
	} else {
		for _, region := range globalLoader.Regions() {
			names = append(names, region.Name)
		}
	}

	var st *store.Store
	if !probeNoSave {
		var err error
		st, err = openStore()
		if err != nil {
			return err
		}
	}

	probed := 0
	for _, name := range names {
		entries := globalLoader.EntriesForRegion(name, true)
		if len(entries) == 0 {
			logger.Warn("no mirrors for region", "region", name)
			continue
		}

		fmt.Printf("## %s\n", name)

		for _, entry := range entries {
			speed := globalProber.Speed(entry)
			latency := globalProber.Latency(entry)
			probed++

			latencyText := "timeout"
			if latency != probe.LatencyTimeout {
				latencyText = fmt.Sprintf("%.1fms", latency)
			}
			fmt.Printf("%-60s latency=%-8s speed=%.2f MiB/s\n", entry.URL, latencyText, speed/1024/1024)

			if st != nil {
				rec := &store.ProbeRecord{
					URL:       entry.URL,
					Region:    name,
					LatencyMs: latency,
					SpeedBps:  speed,
					ProbedAt:  time.Now().UTC(),
				}
				if err := st.SaveProbeResult(rec); err != nil {
					logger.Warn("failed to record probe result", "url", entry.URL, "error", err)
				}
			}
		}
	}

	logger.Info("probe completed", "mirrors", probed, "regions", len(names))
	return nil
}

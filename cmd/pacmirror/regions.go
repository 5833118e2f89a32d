package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var regionsShowURLs bool

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List selectable mirror regions",
		Long: `List the mirror regions available for selection, grouped by country
as reported by the mirror-status feed. In offline mode, or when the feed is
unreachable, regions come from the local mirrorlist instead.`,
		Example: `  pacmirror regions
  pacmirror regions --urls
  pacmirror regions --offline`,
		RunE: regionsRun,
	}

	cmd.Flags().BoolVar(&regionsShowURLs, "urls", false, "also print each region's mirror URLs")

	return cmd
}

func regionsRun(cmd *cobra.Command, args []string) error {
	if err := globalLoader.Load(cmd.Context(), offline); err != nil {
		return fmt.Errorf("loading mirror data: %w", err)
	}

	regions := globalLoader.Regions()
	if len(regions) == 0 {
		logger.Warn("no mirror regions available")
		return nil
	}

	for _, region := range regions {
		fmt.Printf("%s (%d mirrors)\n", region.Name, len(region.URLs))

		if regionsShowURLs {
			for _, url := range region.URLs {
				fmt.Printf("  %s\n", url)
			}
		}
	}

	return nil
}

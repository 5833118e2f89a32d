package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the effective tool configuration as YAML, after applying the
discovered config file and any command-line overrides.`,
		Example: `  pacmirror config
  pacmirror config --config ./pacmirror.yaml`,
		RunE: configRun,
	}

	return cmd
}

func configRun(cmd *cobra.Command, args []string) error {
	if cfgPath != "" {
		fmt.Printf("# config file: %s\n", cfgPath)
	} else {
		fmt.Println("# no config file found, showing defaults")
	}

	out, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Print(string(out))
	return nil
}

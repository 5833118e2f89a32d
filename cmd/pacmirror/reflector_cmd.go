package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pacmirror/internal/mirror"
	"pacmirror/internal/reflector"
)

var (
	reflectorSelection string
	reflectorTarget    string
)

func newReflectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflector",
		Short: "Regenerate the mirrorlist with the external reflector tool",
		Long: `Run the external reflector ranking tool using the settings stored in
the persisted mirror selection. The tool is installed through pacman if it
is not already present.

Reflector is best-effort: when it is disabled in the selection, cannot be
installed, or exits with an error, the command reports the outcome and
exits successfully.`,
		Example: `  pacmirror reflector
  pacmirror reflector --target /etc/pacman.d/mirrorlist
  pacmirror reflector --selection selection.json`,
		RunE: reflectorRun,
	}

	cmd.Flags().StringVar(&reflectorSelection, "selection", "", "path to the persisted selection document (default from config)")
	cmd.Flags().StringVar(&reflectorTarget, "target", "", "mirrorlist path reflector writes to (default /etc/pacman.d/mirrorlist)")

	return cmd
}

func reflectorRun(cmd *cobra.Command, args []string) error {
	selectionPath := reflectorSelection
	if selectionPath == "" {
		selectionPath = globalCfg.Mirrors.Selection
	}

	data, err := os.ReadFile(selectionPath)
	if err != nil {
		return fmt.Errorf("reading selection document: %w", err)
	}

	selection, err := mirror.ParseConfiguration(data, nil)
	if err != nil {
		return fmt.Errorf("parsing selection document: %w", err)
	}

	runner := reflector.NewRunner(logger)
	if selection.ApplyReflector(runner, reflectorTarget) {
		fmt.Println("mirrorlist regenerated by reflector")
	} else {
		fmt.Println("reflector did not run; mirrorlist unchanged")
	}

	return nil
}

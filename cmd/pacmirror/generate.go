package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pacmirror/internal/mirror"
	"pacmirror/internal/reflector"
)

var (
	generateSelection      string
	generateOut            string
	generateReposOut       string
	generateApplyReflector bool
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render a persisted mirror selection into pacman files",
		Long: `Read a persisted mirror selection document and write pacman's
mirrorlist (custom servers first, then selected regions in score/speed
order) and, when custom repositories are defined, a repository definition
file.

With --apply-reflector and reflector enabled in the selection, the external
ranking tool regenerates the mirrorlist afterwards; its failure is reported
but does not fail the command.`,
		Example: `  pacmirror generate
  pacmirror generate --selection selection.json --out ./mirrorlist
  pacmirror generate --apply-reflector`,
		RunE: generateRun,
	}

	cmd.Flags().StringVar(&generateSelection, "selection", "", "path to the persisted selection document (default from config)")
	cmd.Flags().StringVar(&generateOut, "out", "", "mirrorlist output path (default from config)")
	cmd.Flags().StringVar(&generateReposOut, "repos-out", "", "repository definition output path (default from config)")
	cmd.Flags().BoolVar(&generateApplyReflector, "apply-reflector", false, "run the external ranking tool after writing, when enabled in the selection")

	return cmd
}

func generateRun(cmd *cobra.Command, args []string) error {
	selectionPath := generateSelection
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

	if err := globalLoader.Load(cmd.Context(), offline); err != nil {
		return fmt.Errorf("loading mirror data: %w", err)
	}

	outPath := generateOut
	if outPath == "" {
		outPath = globalCfg.Mirrors.Mirrorlist
	}

	var b strings.Builder
	if servers := selection.CustomServersConfig(); servers != "" {
		b.WriteString(servers)
		b.WriteString("\n")
	}
	b.WriteString(selection.RegionsConfig(globalLoader, true))

	if err := os.WriteFile(outPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing mirrorlist: %w", err)
	}
	logger.Info("mirrorlist written", "path", outPath, "regions", len(selection.Regions), "custom_servers", len(selection.CustomServers))

	if repos := selection.RepositoriesConfig(); repos != "" {
		reposPath := generateReposOut
		if reposPath == "" {
			reposPath = globalCfg.Mirrors.RepoFile
		}

		if err := os.WriteFile(reposPath, []byte(repos), 0644); err != nil {
			return fmt.Errorf("writing repository definitions: %w", err)
		}
		logger.Info("repository definitions written", "path", reposPath, "repositories", len(selection.CustomRepositories))
	}

	if generateApplyReflector {
		runner := reflector.NewRunner(logger)
		if !selection.ApplyReflector(runner, outPath) {
			logger.Warn("reflector did not update the mirrorlist", "target", outPath)
		}
	}

	return nil
}

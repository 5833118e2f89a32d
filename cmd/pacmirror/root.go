package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pacmirror/internal/config"
	"pacmirror/internal/mirror"
	"pacmirror/internal/probe"
	"pacmirror/internal/store"
)

var (
	// Global flags
	cfgPath    string
	mirrorlist string
	offline    bool
	logLevel   string
	logFormat  string
	globalCfg  *config.Config
	logger     *slog.Logger

	// Global components
	globalStore  *store.Store
	globalLoader *mirror.Loader
	globalProber *probe.Prober
)

// initializeComponents initializes the global prober and loader
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	globalProber = probe.New(globalCfg.Probe.Retries, logger)
	globalLoader = mirror.NewLoader(
		globalCfg.Mirrors.StatusURL,
		globalCfg.Mirrors.Mirrorlist,
		globalProber,
		logger,
	)

	return nil
}

// openStore opens the probe-history store on first use, creating its
// directory if needed. Only commands that record or report probe history
// pay this cost.
func openStore() (*store.Store, error) {
	if globalStore != nil {
		return globalStore, nil
	}

	dbPath := globalCfg.Store.DBPath
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}

	st, err := store.New(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	globalStore = st
	return globalStore, nil
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
	}
	return skipInitCmds[cmdName]
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pacmirror",
		Short: "Select and configure pacman mirror sources",
		Long: `pacmirror selects and configures package-mirror sources for an
Arch-style installation. It loads the distribution's mirror-status feed
(falling back to the local mirrorlist), measures mirror quality on demand,
renders a persisted mirror selection into pacman's mirrorlist and custom
repository files, and can delegate mirrorlist generation to the external
reflector ranking tool.`,
		Example: `  pacmirror regions
  pacmirror probe --region Germany
  pacmirror generate --selection /etc/pacmirror/selection.json
  pacmirror reflector --target /etc/pacman.d/mirrorlist
  pacmirror status --region Germany`,
		Version: "0.1.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			// Skip config loading for commands that don't need it
			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			// Load config
			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil && cmd.Name() != "config" {
					logger.Warn("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if mirrorlist != "" {
				globalCfg.Mirrors.Mirrorlist = mirrorlist
			}

			// Initialize components after config is loaded
			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&mirrorlist, "mirrorlist", "", "override local mirrorlist path")
	cmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip the remote mirror-status feed and use only the local mirrorlist")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	// Add subcommands
	cmd.AddCommand(
		newRegionsCmd(),
		newProbeCmd(),
		newGenerateCmd(),
		newReflectorCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}

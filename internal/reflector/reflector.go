// Package reflector drives the external mirror-ranking tool. The tool is an
// optional, install-on-demand dependency: the runner checks for it, attempts
// one unattended install if missing, and treats persistent unavailability as
// an ordinary failure outcome.
package reflector

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"pacmirror/internal/mirror"
)

const toolName = "reflector"

// Runner invokes the ranking tool as a subprocess. Every failure mode
// (missing and uninstallable tool, non-zero exit, invocation errors) is
// logged and reported as a false result, never raised.
type Runner struct {
	logger *slog.Logger

	// lookPath and runCommand are replaced in tests.
	lookPath   func(file string) (string, error)
	runCommand func(ctx context.Context, name string, args ...string) error
}

// NewRunner creates a Runner using the system tool lookup and subprocess
// execution.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger:   logger,
		lookPath: exec.LookPath,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			return cmd.Run()
		},
	}
}

// Run generates an optimized mirrorlist at targetPath using the given
// settings. Returns true only when the tool exits successfully.
func (r *Runner) Run(config mirror.ReflectorConfig, targetPath string) bool {
	if !config.Enabled {
		return false
	}

	if targetPath == "" {
		targetPath = mirror.DefaultMirrorlistPath
	}

	if !r.ensureInstalled() {
		return false
	}

	args := config.CommandArgs()
	args = append(args, "--save", targetPath)

	r.logger.Info("running reflector", "command", strings.Join(args, " "))

	if err := r.runCommand(context.Background(), args[0], args[1:]...); err != nil {
		r.logger.Warn("reflector failed", "target", targetPath, "error", err)
		return false
	}

	r.logger.Info("reflector updated mirrorlist", "target", targetPath)
	return true
}

// ensureInstalled checks for the tool and attempts one unattended install
// through the package manager when it is missing.
func (r *Runner) ensureInstalled() bool {
	if _, err := r.lookPath(toolName); err == nil {
		return true
	}

	r.logger.Info("reflector not found, installing")

	if err := r.runCommand(context.Background(), "pacman", "-Sy", "--noconfirm", toolName); err != nil {
		r.logger.Warn("failed to install reflector", "error", err)
		return false
	}

	return true
}

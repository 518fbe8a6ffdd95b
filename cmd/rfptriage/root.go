package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/config"
	"github.com/jackzampolin/rfptriage/internal/home"
	"github.com/jackzampolin/rfptriage/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "rfptriage",
	Short: "RFP triage and LED display spec extraction",
	Long: `rfptriage reads large RFP documents and finds the pages that matter
for an LED display bid.

The pipeline:
  - Extracts text from every page and classifies it with keyword banks
  - Selects the relevant pages and sends drawings to a vision model
  - Extracts display specs, requirements and project details with an LLM
  - Stores runs in DefraDB and optionally indexes them in Redis for search`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.rfptriage/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "rfptriage home directory (default: ~/.rfptriage)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		api.SetOutputFormat(outputFormat)
		return config.LoadDotEnv()
	}

	rootCmd.AddCommand(versionCmd)
}

// getHome returns the home directory, creating it if needed.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// loadConfig resolves --config, then the home config file, then the
// default search path.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h != nil && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}

// newLogger writes text logs at the configured level. Commands that print
// results to stdout log to stderr.
func newLogger(cfg *config.Config, stderr bool) *slog.Logger {
	w := os.Stdout
	if stderr {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))
}

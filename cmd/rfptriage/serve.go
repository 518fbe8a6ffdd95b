package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/server"
)

var (
	serveHost     string
	servePort     string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rfptriage server",
	Long: `Start the rfptriage HTTP server.

Unless defra.url points at an existing node, this also starts the DefraDB
container and stops it again on shutdown (Ctrl+C or SIGTERM).

The server provides:
  - /api/health   - Liveness check
  - /ready        - Readiness check (includes DefraDB status)
  - /api/triage   - Classify every page of an uploaded PDF
  - /api/analyze  - Run the full pipeline, streaming NDJSON events
  - /api/extract  - Copy selected pages into a new PDF
  - /api/runs     - Stored runs, XLSX export and search
  - /swagger      - API documentation

Examples:
  rfptriage serve                    # Start on the configured port (8080)
  rfptriage serve --port 3000        # Start on custom port
  rfptriage serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cfgMgr.Get()
		if serveLogLevel != "" {
			cfg.LogLevel = serveLogLevel
		}
		logger := newLogger(cfg, false)
		cfgMgr.SetLogger(logger)

		if err := h.ClaimPID(); err != nil {
			return err
		}
		defer h.ReleasePID()

		if file := cfgMgr.ConfigFile(); file != "" {
			logger.Info("using config file", "path", file)
			cfgMgr.WatchConfig()
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until shutdown.
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (default server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default server.port)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "debug, info, warn or error (default log_level)")

	rootCmd.AddCommand(serveCmd)
}

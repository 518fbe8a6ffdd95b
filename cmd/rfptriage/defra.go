package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container lifecycle.

DefraDB stores analysis runs and their pages. The database runs in a
Docker container with data persisted to ~/.rfptriage/defradb/. Container
name, image and port come from the defra section of the config.

Examples:
  rfptriage defra start   # Start the DefraDB container
  rfptriage defra stop    # Stop the container (data preserved)
  rfptriage defra status  # Check container status
  rfptriage defra logs    # View container logs`,
}

// withDockerManager runs fn against a manager built from the config.
func withDockerManager(cmd *cobra.Command, fn func(m *defra.DockerManager) error) error {
	h, err := getHome()
	if err != nil {
		return err
	}
	m, err := getDockerManager(h)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

var defraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DefraDB container",
	Long: `Start the DefraDB container.

Creates the container if it doesn't exist and starts it if stopped.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			fmt.Println("Starting DefraDB...")
			if err := m.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start DefraDB: %w", err)
			}
			fmt.Printf("DefraDB is running at %s\n", m.URL())
			return nil
		})
	},
}

var defraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DefraDB container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			fmt.Println("Stopping DefraDB...")
			if err := m.Stop(cmd.Context()); err != nil {
				return fmt.Errorf("failed to stop DefraDB: %w", err)
			}
			fmt.Println("DefraDB stopped")
			return nil
		})
	},
}

var defraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DefraDB container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			ctx := cmd.Context()
			status, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			switch status {
			case defra.StatusRunning:
				fmt.Printf("Status: %s\n", status)
				fmt.Printf("URL: %s\n", m.URL())
				if err := defra.NewClient(m.URL()).HealthCheck(ctx); err != nil {
					fmt.Printf("Health: unhealthy (%v)\n", err)
				} else {
					fmt.Println("Health: healthy")
				}
			case defra.StatusStopped:
				fmt.Printf("Status: %s (use 'rfptriage defra start' to start)\n", status)
			case defra.StatusNotFound:
				fmt.Printf("Status: %s (use 'rfptriage defra start' to create)\n", status)
			default:
				fmt.Printf("Status: %s\n", status)
			}
			return nil
		})
	},
}

var logsTail string

var defraLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show DefraDB container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			logs, err := m.Logs(cmd.Context(), logsTail)
			if err != nil {
				return fmt.Errorf("failed to get logs: %w", err)
			}
			fmt.Print(logs)
			return nil
		})
	},
}

var defraRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the DefraDB container",
	Long: `Remove the DefraDB container.

Data in ~/.rfptriage/defradb/ is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			fmt.Println("Removing DefraDB container...")
			if err := m.Remove(cmd.Context()); err != nil {
				return fmt.Errorf("failed to remove container: %w", err)
			}
			fmt.Println("DefraDB container removed (data preserved)")
			return nil
		})
	},
}

var defraWaitTimeout time.Duration

var defraWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for DefraDB to be ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDockerManager(cmd, func(m *defra.DockerManager) error {
			fmt.Printf("Waiting for DefraDB (timeout: %s)...\n", defraWaitTimeout)
			if err := m.WaitReady(cmd.Context(), defraWaitTimeout); err != nil {
				return fmt.Errorf("DefraDB not ready: %w", err)
			}
			fmt.Println("DefraDB is ready")
			return nil
		})
	},
}

func init() {
	defraCmd.AddCommand(defraStartCmd)
	defraCmd.AddCommand(defraStopCmd)
	defraCmd.AddCommand(defraStatusCmd)
	defraCmd.AddCommand(defraLogsCmd)
	defraCmd.AddCommand(defraRemoveCmd)
	defraCmd.AddCommand(defraWaitCmd)

	defraLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	defraWaitCmd.Flags().DurationVar(&defraWaitTimeout, "timeout", 30*time.Second, "Timeout waiting for DefraDB")

	rootCmd.AddCommand(defraCmd)
}

// getDockerManager creates a DockerManager from the defra config section.
func getDockerManager(h *home.Dir) (*defra.DockerManager, error) {
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	c := mgr.Get()

	if err := os.MkdirAll(h.DefraPath(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return defra.NewDockerManager(defra.DockerConfig{
		ContainerName: c.Defra.ContainerName,
		Image:         c.Defra.Image,
		DataPath:      h.DefraPath(),
		HostPort:      c.Defra.Port,
	})
}

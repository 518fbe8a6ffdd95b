package main

import (
	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	reg := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		reg.Register(ep)
	}
	apiCmd := reg.BuildCommands(getServerURL)

	// Persistent so every subcommand inherits it.
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)
	rootCmd.AddCommand(apiCmd)
}

package endpoints

import (
	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DefraManager is nil when DefraDB is reached at an external URL.
	DefraManager *defra.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Analysis endpoints
		&TriageEndpoint{},
		&AnalyzeEndpoint{},
		&ExtractPagesEndpoint{},

		// Stored run endpoints
		&ListRunsEndpoint{},
		&GetRunEndpoint{},
		&ExportRunEndpoint{},
		&SearchRunEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackzampolin/rfptriage/internal/defra"
)

// Initialize applies every schema. Collections that already exist are
// skipped, so it is safe to call on each start.
func Initialize(ctx context.Context, client *defra.Client, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := All()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	for _, s := range schemas {
		if err := client.AddSchema(ctx, s.SDL); err != nil {
			if isAlreadyExistsError(err) {
				logger.Debug("schema already exists", "name", s.Name)
				continue
			}
			return fmt.Errorf("failed to add schema %s: %w", s.Name, err)
		}
		logger.Info("schema added", "name", s.Name)
	}
	return nil
}

// isAlreadyExistsError matches DefraDB's error text; the HTTP API has no
// error codes for this case.
func isAlreadyExistsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

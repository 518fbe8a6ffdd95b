package server

import (
	"log/slog"

	"github.com/jackzampolin/rfptriage/internal/config"
	"github.com/jackzampolin/rfptriage/internal/extract"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/vision"
)

// PipelineDeps builds the orchestrator collaborators from config and the
// provider registry. Store and Index are left for the caller. A missing OCR
// provider leaves Vision nil and drawing pages fall back to raw text; a
// missing LLM leaves Extractor nil and runs end after page selection.
func PipelineDeps(c *config.Config, registry *providers.Registry, logger *slog.Logger) (pipeline.Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	classifier, err := c.Classifier()
	if err != nil {
		return pipeline.Deps{}, err
	}
	deps := pipeline.Deps{
		Open:       pipeline.PDFOpener(c.PDFConfig(logger)),
		Classifier: classifier,
	}

	if ocr, err := registry.FirstOCR(c.Defaults.OCRProviders...); err == nil {
		deps.Vision = vision.NewDispatcher(ocr, c.VisionConfig(logger))
	} else {
		logger.Warn("vision disabled", "error", err)
	}

	if llm, err := registry.GetLLM(c.Defaults.LLMProvider); err == nil {
		deps.Extractor = extract.New(llm, c.ExtractConfig(logger))
	} else {
		logger.Warn("extraction disabled", "provider", c.Defaults.LLMProvider, "error", err)
	}
	return deps, nil
}

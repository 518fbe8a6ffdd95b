package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/rfptriage/internal/pdf"
	"github.com/jackzampolin/rfptriage/internal/triage"
)

// Triage classifies every page of the document at path without vision or
// extraction. Per-page text failures are logged and the page is scored as
// empty.
func (o *Orchestrator) Triage(ctx context.Context, path string, classifier *triage.Classifier) (*triage.Report, error) {
	start := time.Now()
	deps := o.Deps()
	if classifier == nil {
		classifier = deps.Classifier
	}
	if classifier == nil {
		classifier = triage.NewClassifier(nil, triage.Thresholds{}, nil)
	}
	open := deps.Open
	if open == nil {
		open = PDFOpener(pdf.Config{Logger: o.logger})
	}

	doc, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	total, err := doc.PageCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if total <= 0 {
		return nil, fmt.Errorf("document %s has no pages", doc.Name())
	}

	texts := o.extractText(ctx, doc, total, func(page int, err error) {
		o.logger.Warn("text extraction failed", "document", doc.Name(), "page_num", page, "error", err)
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	images, err := doc.PagesWithImages(ctx)
	if err != nil {
		o.logger.Warn("image inventory failed", "document", doc.Name(), "error", err)
	}

	pages := make([]triage.Page, total)
	for i := range pages {
		n := i + 1
		pages[i] = triage.Page{Number: n, Text: texts[n], HasEmbeddedImage: images[n]}
	}
	cls, err := classifier.ClassifyAll(ctx, pages)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	return triage.BuildReport(doc.Name(), pages, cls, classifier.Thresholds().RelevantMin, time.Since(start)), nil
}

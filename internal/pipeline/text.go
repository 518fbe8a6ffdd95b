package pipeline

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/rfptriage/internal/pdf"
)

// extractText returns page text indexed by page number (index 0 unused).
// One bulk call covers the whole document; pages that come back empty, or
// every page when the bulk call fails, are retried one at a time. Pages that
// still fail keep empty text and are reported through onFail.
func (o *Orchestrator) extractText(ctx context.Context, doc Document, total int, onFail func(page int, err error)) []string {
	texts := make([]string, total+1)

	bulk, err := doc.ExtractText(ctx, 1, total)
	if err != nil && !errors.Is(err, pdf.ErrNoText) {
		if ctx.Err() != nil {
			return texts
		}
		o.logger.Warn("bulk text extraction failed, retrying per page", "error", err)
	}
	for _, pt := range bulk {
		if pt.Page >= 1 && pt.Page <= total {
			texts[pt.Page] = pt.Text
		}
	}

	var retry []int
	for n := 1; n <= total; n++ {
		if strings.TrimSpace(texts[n]) == "" {
			retry = append(retry, n)
		}
	}
	if len(retry) == 0 {
		return texts
	}
	o.logger.Debug("retrying pages individually", "pages", len(retry))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.TextWorkers)
	for _, n := range retry {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			got, err := doc.ExtractText(gctx, n, n)
			if err != nil {
				if errors.Is(err, pdf.ErrNoText) || gctx.Err() != nil {
					return nil
				}
				onFail(n, err)
				return nil
			}
			for _, pt := range got {
				if pt.Page == n {
					texts[n] = pt.Text
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return texts
}

package vision

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jackzampolin/rfptriage/internal/providers"
)

// TableConverter turns provider table fragments into markdown.
// It is safe for concurrent use.
type TableConverter struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewTableConverter creates a converter for HTML and markdown table fragments.
func NewTableConverter() *TableConverter {
	return &TableConverter{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// HTMLToMarkdown sanitizes an HTML fragment and converts it to markdown.
func (tc *TableConverter) HTMLToMarkdown(html string) (string, error) {
	clean := tc.policy.Sanitize(html)
	md, err := tc.conv.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("convert table: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Tables collects markdown tables for a page: the provider's fragments
// converted to markdown, followed by any pipe tables in text that were not
// already returned. Order follows the page. Unconvertible fragments are
// skipped and counted in dropped.
func (tc *TableConverter) Tables(res *providers.OCRResult) (tables []string, dropped int) {
	seen := make(map[string]bool)
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tables = append(tables, t)
	}

	for _, frag := range res.Tables {
		if res.TableFormat == providers.TableFormatHTML || looksLikeHTML(frag) {
			md, err := tc.HTMLToMarkdown(frag)
			if err != nil || md == "" {
				dropped++
				continue
			}
			add(md)
			continue
		}
		add(frag)
	}
	for _, t := range providers.MarkdownTables(res.Text) {
		add(t)
	}
	return tables, dropped
}

func looksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<")
}

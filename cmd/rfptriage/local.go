package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/config"
	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/export"
	"github.com/jackzampolin/rfptriage/internal/home"
	"github.com/jackzampolin/rfptriage/internal/pdf"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/schema"
	"github.com/jackzampolin/rfptriage/internal/server"
	"github.com/jackzampolin/rfptriage/internal/store"
	"github.com/jackzampolin/rfptriage/internal/triage"
)

// These commands run the pipeline in-process. The api subcommands do the
// same work against a running server.

const localDefraTimeout = 30 * time.Second

// localEnv is the config, logger and home shared by in-process commands.
type localEnv struct {
	home   *home.Dir
	cfg    *config.Config
	logger *slog.Logger
}

func newLocalEnv() (*localEnv, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	return &localEnv{home: h, cfg: cfg, logger: newLogger(cfg, true)}, nil
}

func (e *localEnv) orchestrator() (*pipeline.Orchestrator, error) {
	registry := providers.NewRegistry()
	registry.SetLogger(e.logger)
	registry.Reload(e.cfg.ToProviderRegistryConfig())

	deps, err := server.PipelineDeps(e.cfg, registry, e.logger)
	if err != nil {
		return nil, err
	}
	return pipeline.New(deps, e.cfg.PipelineConfig(e.logger)), nil
}

// store connects to DefraDB at defra.url, or at the managed container, and
// makes sure the collections exist.
func (e *localEnv) store(ctx context.Context) (*store.Store, error) {
	url := e.cfg.Defra.URL
	if url == "" {
		m, err := getDockerManager(e.home)
		if err != nil {
			return nil, err
		}
		url = m.URL()
		m.Close()
	}

	client := defra.NewClient(url)
	if err := defra.WaitHealthy(ctx, client, localDefraTimeout); err != nil {
		return nil, fmt.Errorf("DefraDB at %s is not reachable (try 'rfptriage defra start'): %w", url, err)
	}
	if err := schema.Initialize(ctx, client, e.logger); err != nil {
		return nil, err
	}
	return store.New(store.Config{Client: client, Logger: e.logger}), nil
}

// classifier applies --keywords and --disable-banks to the configured banks.
func (e *localEnv) classifier(extra, disabled []string) (*triage.Classifier, error) {
	if len(extra) == 0 && len(disabled) == 0 {
		return e.cfg.Classifier()
	}
	base, err := e.cfg.Banks()
	if err != nil {
		return nil, err
	}
	banks, err := base.WithOverrides(extra, disabled)
	if err != nil {
		return nil, err
	}
	return triage.NewClassifier(banks, e.cfg.Triage.Thresholds, e.cfg.Triage.ForcePhrases), nil
}

var (
	localKeywords      []string
	localDisabledBanks []string
)

var triageCmd = &cobra.Command{
	Use:   "triage <pdf>",
	Short: "Classify every page of a PDF",
	Long: `Classify every page of a PDF with the keyword banks.

No vision or LLM calls are made, so no API keys are needed.

Examples:
  rfptriage triage bid.pdf
  rfptriage triage bid.pdf --keywords "video board,ribbon board" -o json
  rfptriage triage bid.pdf --disable-banks noise`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newLocalEnv()
		if err != nil {
			return err
		}
		classifier, err := env.classifier(localKeywords, localDisabledBanks)
		if err != nil {
			return err
		}
		orch, err := env.orchestrator()
		if err != nil {
			return err
		}
		report, err := orch.Triage(cmd.Context(), args[0], classifier)
		if err != nil {
			return err
		}
		return api.Output(report)
	},
}

var (
	analyzeContext string
	analyzeSave    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pdf>",
	Short: "Run the full pipeline on a PDF",
	Long: `Run triage, vision and extraction on a PDF.

Progress events are written to stdout as NDJSON, one event per line, ending
with a complete or error event. Logs go to stderr. With --save the run is
stored in DefraDB and the complete event carries its run_id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := newLocalEnv()
		if err != nil {
			return err
		}
		classifier, err := env.classifier(localKeywords, localDisabledBanks)
		if err != nil {
			return err
		}
		orch, err := env.orchestrator()
		if err != nil {
			return err
		}
		if analyzeSave {
			st, err := env.store(ctx)
			if err != nil {
				return err
			}
			deps := orch.Deps()
			deps.Store = st
			orch.Update(deps)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		_, err = orch.Run(ctx, args[0], pipeline.Options{
			ProjectContext: analyzeContext,
			Classifier:     classifier,
		}, func(ev pipeline.Event) {
			if err := enc.Encode(ev); err != nil {
				env.logger.Warn("failed to write event", "error", err)
			}
		})
		orch.Wait()
		return err
	},
}

var (
	extractPages []int
	extractOut   string
)

var extractPagesCmd = &cobra.Command{
	Use:   "extract-pages <pdf>",
	Short: "Copy selected pages of a PDF into a new file",
	Long: `Copy selected pages of a PDF into a new file.

Pages outside the document are ignored; duplicates are kept once.

Example:
  rfptriage extract-pages bid.pdf --pages 1,3,5 --out led-pages.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		total, err := pdf.PageCount(f)
		if err != nil {
			return err
		}
		pages := pdf.ValidPages(extractPages, total)
		if len(pages) == 0 {
			return fmt.Errorf("no valid pages requested (document has %d)", total)
		}

		out, err := os.Create(extractOut)
		if err != nil {
			return err
		}
		if err := pdf.WritePages(f, out, pages); err != nil {
			out.Close()
			os.Remove(extractOut)
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d pages to %s\n", len(pages), extractOut)
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored run as an XLSX workbook",
	Long: `Export a stored run as an XLSX workbook.

The workbook is written to --out, or to ~/.rfptriage/exports/<run-id>.xlsx.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id := args[0]
		if err := defra.ValidateID(id); err != nil {
			return err
		}

		env, err := newLocalEnv()
		if err != nil {
			return err
		}
		st, err := env.store(ctx)
		if err != nil {
			return err
		}
		run, err := st.Get(ctx, id)
		if err != nil {
			return err
		}
		data, err := export.XLSX(run)
		if err != nil {
			return err
		}

		path := exportOut
		if path == "" {
			path = env.home.ExportPath(id)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{triageCmd, analyzeCmd} {
		c.Flags().StringSliceVar(&localKeywords, "keywords", nil, "extra strong keywords, comma separated")
		c.Flags().StringSliceVar(&localDisabledBanks, "disable-banks", nil, "banks to empty (strong, weak, support, noise)")
	}
	analyzeCmd.Flags().StringVar(&analyzeContext, "context", "", "project context passed to extraction")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "store the run in DefraDB")

	extractPagesCmd.Flags().IntSliceVar(&extractPages, "pages", nil, "pages to keep, e.g. 1,3,5")
	extractPagesCmd.Flags().StringVar(&extractOut, "out", "extracted.pdf", "output file")
	extractPagesCmd.MarkFlagRequired("pages")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default ~/.rfptriage/exports/<run-id>.xlsx)")

	rootCmd.AddCommand(triageCmd, analyzeCmd, extractPagesCmd, exportCmd)
}

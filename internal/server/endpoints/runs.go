package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/export"
	"github.com/jackzampolin/rfptriage/internal/index"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/store"
	"github.com/jackzampolin/rfptriage/internal/svcctx"
	"github.com/jackzampolin/rfptriage/internal/types"
)

// runsGroup is the CLI group for stored-run commands.
const runsGroup = "runs"

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Runs []store.RunSummary `json:"runs"`
}

// ListRunsEndpoint handles GET /api/runs.
type ListRunsEndpoint struct{}

var _ api.Endpoint = (*ListRunsEndpoint)(nil)

func (e *ListRunsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs", e.handler
}

func (e *ListRunsEndpoint) RequiresInit() bool { return true }

func (e *ListRunsEndpoint) Group() string { return runsGroup }

// handler godoc
//
//	@Summary	List stored runs
//	@Tags		runs
//	@Produce	json
//	@Param		limit	query		int	false	"Maximum runs to return"	default(50)
//	@Param		offset	query		int	false	"Runs to skip"
//	@Success	200		{object}	ListRunsResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	500		{object}	ErrorResponse
//	@Failure	503		{object}	ErrorResponse
//	@Router		/api/runs [get]
func (e *ListRunsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	s := svcctx.StoreFrom(r.Context())
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not initialized")
		return
	}

	limit, err := intParam(r, "limit", store.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: runs})
}

func (e *ListRunsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			client := api.NewClient(getServerURL())
			var resp ListRunsResponse
			if err := client.Get(cmd.Context(), "/api/runs?"+q.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	return cmd
}

// GetRunEndpoint handles GET /api/runs/{id}.
type GetRunEndpoint struct{}

var _ api.Endpoint = (*GetRunEndpoint)(nil)

func (e *GetRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}", e.handler
}

func (e *GetRunEndpoint) RequiresInit() bool { return true }

func (e *GetRunEndpoint) Group() string { return runsGroup }

// handler godoc
//
//	@Summary	Get a stored run
//	@Tags		runs
//	@Produce	json
//	@Param		id	path		string	true	"Run ID"
//	@Success	200	{object}	pipeline.Run
//	@Failure	404	{object}	ErrorResponse
//	@Failure	500	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/runs/{id} [get]
func (e *GetRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	run, ok := loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (e *GetRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Get a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var run pipeline.Run
			if err := client.Get(cmd.Context(), "/api/runs/"+url.PathEscape(args[0]), &run); err != nil {
				return err
			}
			return api.Output(run)
		},
	}
}

// ExportRunEndpoint handles GET /api/runs/{id}/export.xlsx.
type ExportRunEndpoint struct{}

var _ api.Endpoint = (*ExportRunEndpoint)(nil)

func (e *ExportRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/export.xlsx", e.handler
}

func (e *ExportRunEndpoint) RequiresInit() bool { return true }

func (e *ExportRunEndpoint) Group() string { return runsGroup }

// handler godoc
//
//	@Summary	Download a run as an XLSX workbook
//	@Tags		runs
//	@Produce	application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Param		id	path		string	true	"Run ID"
//	@Success	200	{file}		binary
//	@Failure	404	{object}	ErrorResponse
//	@Failure	500	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/runs/{id}/export.xlsx [get]
func (e *ExportRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	run, ok := loadRun(w, r)
	if !ok {
		return
	}
	data, err := export.XLSX(run)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "rfp_"+run.ID+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *ExportRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Download a run's XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = "rfp_" + args[0] + ".xlsx"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			if err := client.Download(cmd.Context(), "/api/runs/"+url.PathEscape(args[0])+"/export.xlsx", f); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default rfp_<run-id>.xlsx)")
	return cmd
}

// SearchResponse is the response for a workspace search.
type SearchResponse struct {
	RunID    string         `json:"run_id"`
	Query    string         `json:"query"`
	Category types.Category `json:"category,omitempty"`
	Hits     []index.Hit    `json:"hits"`
}

// SearchRunEndpoint handles GET /api/runs/{id}/search.
type SearchRunEndpoint struct{}

var _ api.Endpoint = (*SearchRunEndpoint)(nil)

func (e *SearchRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{id}/search", e.handler
}

func (e *SearchRunEndpoint) RequiresInit() bool { return true }

func (e *SearchRunEndpoint) Group() string { return runsGroup }

// handler godoc
//
//	@Summary		Search a run's indexed pages
//	@Description	Every query term must appear on a page. With no terms, pages are listed by relevance.
//	@Tags			runs
//	@Produce		json
//	@Param			id			path		string	true	"Run ID"
//	@Param			q			query		string	false	"Search terms"
//	@Param			category	query		string	false	"Restrict to a page category"
//	@Param			limit		query		int		false	"Maximum hits"	default(50)
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/runs/{id}/search [get]
func (e *SearchRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ix := svcctx.IndexFrom(r.Context())
	if ix == nil {
		writeError(w, http.StatusServiceUnavailable, "search index disabled (set redis.enabled)")
		return
	}

	runID := r.PathValue("id")
	if err := defra.ValidateID(runID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := types.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", category))
		return
	}

	query := r.URL.Query().Get("q")
	hits, err := ix.Search(r.Context(), runID, query, index.SearchOptions{Category: category, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hits == nil {
		hits = []index.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{RunID: runID, Query: query, Category: category, Hits: hits})
}

func (e *SearchRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		category string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <run-id> [query]",
		Short: "Search a run's indexed pages",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(args) == 2 {
				q.Set("q", args[1])
			}
			if category != "" {
				q.Set("category", category)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			client := api.NewClient(getServerURL())
			var resp SearchResponse
			path := "/api/runs/" + url.PathEscape(args[0]) + "/search?" + q.Encode()
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "restrict to a page category")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum hits")
	return cmd
}

// loadRun fetches the {id} run, writing the error response on failure.
func loadRun(w http.ResponseWriter, r *http.Request) (*pipeline.Run, bool) {
	s := svcctx.StoreFrom(r.Context())
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not initialized")
		return nil, false
	}
	run, err := s.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, defra.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return run, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

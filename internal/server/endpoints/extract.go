package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/pdf"
)

// ExtractPagesEndpoint handles POST /api/extract.
type ExtractPagesEndpoint struct{}

var _ api.Endpoint = (*ExtractPagesEndpoint)(nil)

func (e *ExtractPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/extract", e.handler
}

func (e *ExtractPagesEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Copy selected pages into a new PDF
//	@Description	Pages outside the document are ignored. Returns 400 when no requested page is valid.
//	@Tags			analysis
//	@Accept			mpfd
//	@Produce		application/pdf
//	@Param			file	formData	file	true	"Source PDF"
//	@Param			pages	formData	string	true	"JSON array of 1-based page numbers, e.g. [1,3,5]"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/api/extract [post]
func (e *ExtractPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, err := receiveUpload(w, r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer u.Remove()

	var requested []int
	if err := json.Unmarshal([]byte(r.FormValue("pages")), &requested); err != nil {
		writeError(w, http.StatusBadRequest, "pages must be a JSON array of page numbers")
		return
	}

	f, err := os.Open(u.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	total, err := pdf.PageCount(f)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	pages := pdf.ValidPages(requested, total)
	if len(pages) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("no valid pages requested (document has %d)", total))
		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := pdf.WritePages(f, &buf, pages); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	name := strings.TrimSuffix(u.Filename, ".pdf") + "_extracted.pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (e *ExtractPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		pages []int
		out   string
	)
	cmd := &cobra.Command{
		Use:   "extract <pdf>",
		Short: "Copy selected pages of a PDF into a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := json.Marshal(pages)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			resp, err := client.Upload(cmd.Context(), "/api/extract", args[0], map[string]string{"pages": string(sel)})
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, resp.Body); err != nil {
				f.Close()
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&pages, "pages", nil, "pages to keep, e.g. 1,3,5")
	cmd.Flags().StringVar(&out, "out", "extracted.pdf", "output file")
	cmd.MarkFlagRequired("pages")
	return cmd
}

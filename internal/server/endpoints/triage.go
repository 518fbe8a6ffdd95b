package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/svcctx"
	"github.com/jackzampolin/rfptriage/internal/triage"
)

// TriageEndpoint handles POST /api/triage.
type TriageEndpoint struct{}

var _ api.Endpoint = (*TriageEndpoint)(nil)

func (e *TriageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/triage", e.handler
}

// Triage only reads the upload, so it works before DefraDB is ready.
func (e *TriageEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Classify every page of a PDF
//	@Description	Runs text extraction and keyword triage only. No vision or LLM calls are made.
//	@Tags			analysis
//	@Accept			mpfd
//	@Produce		json
//	@Param			file			formData	file	true	"RFP PDF"
//	@Param			custom_keywords	formData	string	false	"Comma separated terms added to the strong bank"
//	@Param			disabled_banks	formData	string	false	"Comma separated banks to empty (strong, weak, support, noise)"
//	@Success		200				{object}	triage.Report
//	@Failure		400				{object}	ErrorResponse
//	@Failure		413				{object}	ErrorResponse
//	@Failure		422				{object}	ErrorResponse
//	@Failure		503				{object}	ErrorResponse
//	@Router			/api/triage [post]
func (e *TriageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	u, err := receiveUpload(w, r)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer u.Remove()

	classifier, err := requestClassifier(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := orch.Triage(r.Context(), u.Path, classifier)
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Warn("triage failed", "file", u.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *TriageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var keywords, disabled []string
	cmd := &cobra.Command{
		Use:   "triage <pdf>",
		Short: "Classify the pages of a PDF on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			resp, err := client.Upload(cmd.Context(), "/api/triage", args[0], bankFields(keywords, disabled))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var report triage.Report
			if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return api.Output(report)
		},
	}
	addBankFlags(cmd, &keywords, &disabled)
	return cmd
}

func addBankFlags(cmd *cobra.Command, keywords, disabled *[]string) {
	cmd.Flags().StringSliceVar(keywords, "keywords", nil, "extra strong-bank terms")
	cmd.Flags().StringSliceVar(disabled, "disable-banks", nil, "keyword banks to empty (strong, weak, support, noise)")
}

func bankFields(keywords, disabled []string) map[string]string {
	fields := map[string]string{}
	if len(keywords) > 0 {
		fields["custom_keywords"] = strings.Join(keywords, ",")
	}
	if len(disabled) > 0 {
		fields["disabled_banks"] = strings.Join(disabled, ",")
	}
	return fields
}

package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/svcctx"
)

// NDJSONContentType is the media type of the analyze event stream.
const NDJSONContentType = "application/x-ndjson"

// AnalyzeEndpoint handles POST /api/analyze.
type AnalyzeEndpoint struct{}

var _ api.Endpoint = (*AnalyzeEndpoint)(nil)

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Run the full pipeline on a PDF
//	@Description	Streams pipeline events as newline-delimited JSON. The last line is a complete or error event. Closing the connection cancels the run.
//	@Tags			analysis
//	@Accept			mpfd
//	@Produce		application/x-ndjson
//	@Param			file			formData	file	true	"RFP PDF"
//	@Param			project_context	formData	string	false	"Free text passed to the extraction prompts"
//	@Param			custom_keywords	formData	string	false	"Comma separated terms added to the strong bank"
//	@Param			disabled_banks	formData	string	false	"Comma separated banks to empty"
//	@Success		200				{object}	pipeline.Event
//	@Failure		400				{object}	ErrorResponse
//	@Failure		413				{object}	ErrorResponse
//	@Failure		503				{object}	ErrorResponse
//	@Router			/api/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orch := svcctx.OrchestratorFrom(ctx)
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}
	logger := svcctx.LoggerFrom(ctx)

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
	opts := pipeline.Options{
		ProjectContext: r.FormValue("project_context"),
		Classifier:     classifier,
	}

	w.Header().Set("Content-Type", NDJSONContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	writing := true
	for ev := range orch.Start(ctx, u.Path, opts) {
		if !writing {
			continue
		}
		if err := enc.Encode(ev); err != nil {
			// The run sees the cancelled request context and winds down;
			// keep draining so the channel closes.
			logger.Debug("analyze client went away", "file", u.Filename, "error", err)
			writing = false
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
		if ev.Terminal() {
			logger.Info("analyze finished", "file", u.Filename, "type", ev.Type)
		}
	}
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		projectContext     string
		keywords, disabled []string
	)
	cmd := &cobra.Command{
		Use:   "analyze <pdf>",
		Short: "Run the full pipeline on the server and stream events as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := bankFields(keywords, disabled)
			if projectContext != "" {
				fields["project_context"] = projectContext
			}

			client := api.NewClient(getServerURL())
			resp, err := client.Upload(cmd.Context(), "/api/analyze", args[0], fields)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return relayEvents(resp.Body, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&projectContext, "context", "", "project context passed to extraction")
	addBankFlags(cmd, &keywords, &disabled)
	return cmd
}

// relayEvents copies an NDJSON event stream to out one line per event and
// returns an error if the stream ends in an error event or without a
// terminal event.
func relayEvents(in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)
	for {
		var ev pipeline.Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream ended without a terminal event")
			}
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		switch ev.Type {
		case pipeline.EventComplete:
			return nil
		case pipeline.EventError:
			return fmt.Errorf("analyze failed: %s", ev.Message)
		}
	}
}

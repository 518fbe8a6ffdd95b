package endpoints

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/rfptriage/internal/svcctx"
	"github.com/jackzampolin/rfptriage/internal/triage"
)

// multipartMemory is how much of a form is held in memory before
// mime/multipart spills file parts to disk.
const multipartMemory = 32 << 20

// upload is a PDF received from a multipart form and spooled to disk.
type upload struct {
	Path     string
	Filename string
	dir      string
}

// Remove deletes the spooled file.
func (u *upload) Remove() {
	os.RemoveAll(u.dir)
}

// uploadError carries the HTTP status for a rejected upload.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// receiveUpload reads the "file" part of a multipart request into a fresh
// directory under the uploads dir. The original filename is kept so the
// document reports it as its name.
func receiveUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	cfg := svcctx.ConfigFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", cfg.Server.MaxUploadMB)}
		}
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err)}
	}

	src, fh, err := r.FormFile("file")
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "no file uploaded"}
	}
	defer src.Close()

	name := filepath.Base(fh.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, &uploadError{http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename)}
	}

	root := os.TempDir()
	if h := svcctx.HomeFrom(r.Context()); h != nil {
		root = h.UploadsDir()
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	u := &upload{Path: filepath.Join(dir, name), Filename: name, dir: dir}
	dst, err := os.Create(u.Path)
	if err != nil {
		u.Remove()
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		u.Remove()
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	return u, nil
}

// writeUploadError maps a receiveUpload error to a response.
func writeUploadError(w http.ResponseWriter, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		writeError(w, ue.status, ue.msg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// splitList splits a comma separated form value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// requestClassifier returns a classifier for the custom_keywords and
// disabled_banks form fields, or nil when the request sets neither.
func requestClassifier(r *http.Request) (*triage.Classifier, error) {
	extra := splitList(r.FormValue("custom_keywords"))
	disabled := splitList(r.FormValue("disabled_banks"))
	if len(extra) == 0 && len(disabled) == 0 {
		return nil, nil
	}

	cfg := svcctx.ConfigFrom(r.Context())
	base, err := cfg.Banks()
	if err != nil {
		return nil, err
	}
	banks, err := base.WithOverrides(extra, disabled)
	if err != nil {
		return nil, err
	}
	return triage.NewClassifier(banks, cfg.Triage.Thresholds, cfg.Triage.ForcePhrases), nil
}

package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"jobapply-engine/internal/batch"
	"jobapply-engine/internal/csvimport"
	"jobapply-engine/internal/events"
)

const maxCSVUpload = 10 << 20

type BatchHandler struct {
	Runner  BatchRunner
	Quota   QuotaReporter
	Hub     *events.Hub
	BaseCtx context.Context
}

func (h BatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Runner.Status())
}

// Run starts a batch in the background and returns 202; 409 when one is already running.
func (h BatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Runner.Status().Running {
		WriteError(w, r, http.StatusConflict, "already_running", batch.ErrRunInProgress.Error())
		return
	}

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if _, err := h.Runner.RunBatch(ctx, "manual"); err != nil {
			log.Printf("[batch] manual run: %v", err)
		}
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// ImportCSV accepts a multipart upload (field "file") or a raw CSV body and ingests it synchronously.
func (h BatchHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUpload)

	var in io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
			return
		}
		defer f.Close()
		in = f
	}

	sum, err := h.Runner.ImportCSV(r.Context(), in)
	switch {
	case errors.Is(err, batch.ErrRunInProgress):
		WriteError(w, r, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, csvimport.ErrEmptyInput), errors.Is(err, csvimport.ErrUnrecognizedFormat):
		WriteError(w, r, http.StatusBadRequest, "invalid_csv", err.Error())
	case err != nil:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, "too_large", "csv upload exceeds 10MB")
			return
		}
		writeInternal(w, r, err)
	default:
		WriteJSON(w, http.StatusOK, sum)
	}
}

func (h BatchHandler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	if h.Quota == nil {
		WriteError(w, r, http.StatusNotFound, "not_configured", "search quota is not configured")
		return
	}
	st, err := h.Quota.Status(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"jobapply-engine/internal/apply"
	"jobapply-engine/internal/domain"
	"jobapply-engine/internal/events"
	"jobapply-engine/internal/store"
)

const (
	defaultListLimit = 200
	maxListLimit     = 5000
)

type PostingsHandler struct {
	Store Store
	Hub   *events.Hub
}

func (h PostingsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.PostingFilter{
		SourcePlatform: strings.TrimSpace(q.Get("platform")),
		Q:              q.Get("q"),
		Limit:          defaultListLimit,
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		f.Status = string(st)
	}
	if s := strings.TrimSpace(q.Get("min_score")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 100 {
			WriteError(w, r, http.StatusBadRequest, "invalid_min_score", "min_score must be 0..100")
			return
		}
		f.MinScore = &n
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	ps, err := h.Store.Query(r.Context(), f)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ps)
}

func (h PostingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/postings/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	p, err := h.Store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("posting %d not found", id))
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

type patchPostingReq struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// Patch applies a manual status change and/or replaces the notes.
// Status moves must follow the posting lifecycle; illegal ones get 409.
func (h PostingsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/postings/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req patchPostingReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Status == nil && req.Notes == nil {
		WriteError(w, r, http.StatusBadRequest, "empty_patch", "status or notes is required")
		return
	}

	cur, err := h.Store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", fmt.Sprintf("posting %d not found", id))
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	next := cur.Status
	if req.Status != nil {
		st, err := domain.ParseStatus(strings.TrimSpace(*req.Status))
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		if st != cur.Status && !domain.IsTransitionAllowed(cur.Status, st) {
			WriteError(w, r, http.StatusConflict, "invalid_transition",
				fmt.Sprintf("cannot move posting from %s to %s", cur.Status, st))
			return
		}
		next = st
	}

	notes := cur.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}
	// Conditional on the status read above so a concurrent batch transition is not overwritten.
	moved, err := h.Store.TransitionStatus(r.Context(), id, cur.Status, next, notes)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if !moved {
		WriteError(w, r, http.StatusConflict, "status_changed",
			fmt.Sprintf("posting %d changed status while updating; reload and retry", id))
		return
	}
	updated, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypePostingUpdated, 1,
			map[string]any{"id": id, "status": updated.Status}))
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h PostingsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.Aggregate(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// CoverLetter serves the stored PDF, or the plain text with ?format=text.
func (h PostingsHandler) CoverLetter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/cover-letters/")
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	cl, err := h.Store.GetCoverLetter(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "no cover letter for this posting")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" || len(cl.PDF) == 0 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(cl.Body))
		return
	}

	name := fmt.Sprintf("cover-letter-%d.pdf", id)
	if p, err := h.Store.GetByID(r.Context(), id); err == nil {
		name = apply.PDFFilename(p.Title, p.Employer)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(cl.PDF)))
	_, _ = w.Write(cl.PDF)
}

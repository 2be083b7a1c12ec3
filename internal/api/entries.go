package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

func handleAddEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item ingest.Item
		if !decodeBody(w, r, &item) {
			return
		}

		res, err := deps.Collector.Add(r.Context(), item)
		switch {
		case errors.Is(err, ingest.ErrDuplicate):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": map[string]any{
					"message": err.Error(),
					"type":    "duplicate",
				},
				"duplicate": res.Duplicate,
			})
			return
		case errors.Is(err, storage.ErrInvalidEntry):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save entry: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

func handleListEntries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := storage.EntryFilter{
			Category: q.Get("category"),
			Search:   q.Get("q"),
			MinScore: parseIntParam(r, "min_score", 0, 100),
			Limit:    parseIntParam(r, "limit", 50, 500),
			Offset:   parseIntParam(r, "offset", 0, 0),
		}
		if st := q.Get("source_type"); st != "" {
			parsed, err := storage.ParseSourceType(st)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			f.SourceType = parsed
		}

		entries, err := deps.Store.ListEntries(f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entries: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := deps.Store.GetEntry(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleUpdateEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u storage.EntryUpdate
		if !decodeBody(w, r, &u) {
			return
		}

		e, err := deps.Store.UpdateEntry(chi.URLParam(r, "id"), u)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		case errors.Is(err, storage.ErrInvalidEntry):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

func handleDeleteEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteEntry(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleScoreEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e, err := deps.Store.GetEntry(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entry: %v", err)
			return
		}

		res := quality.Score(e.Content)
		if err := deps.Store.SetQualityScore(id, res.Overall); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store score: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

type scoreRequest struct {
	Content string `json:"content"`
}

func handleScoreText(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, quality.Score(req.Content))
}

type dedupRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DedupResult is the response of a duplicate check.
type DedupResult struct {
	Duplicate     bool          `json:"duplicate"`
	Match         *dedup.Match  `json:"match,omitempty"`
	SimilarTitles []dedup.Match `json:"similar_titles"`
}

func checkDuplicate(store *storage.Store, checker *dedup.Checker, title, content string) (DedupResult, error) {
	existing, err := store.ListEntries(storage.EntryFilter{})
	if err != nil {
		return DedupResult{}, err
	}

	res := DedupResult{
		SimilarTitles: dedup.SimilarTitles(title, existing, 0.5, 5),
	}
	if res.SimilarTitles == nil {
		res.SimilarTitles = []dedup.Match{}
	}
	if m, ok := checker.FindDuplicate(storage.Entry{Title: title, Content: content}, existing); ok {
		res.Duplicate = true
		res.Match = &m
	}
	return res, nil
}

func handleDedupCheck(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dedupRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title or content is required")
			return
		}

		res, err := checkDuplicate(deps.Store, deps.Checker, req.Title, req.Content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check duplicates: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type exportFilter struct {
	SourceType string `json:"source_type"`
	Category   string `json:"category"`
	Search     string `json:"search"`
}

type exportRequest struct {
	Format   string          `json:"format"`
	IDs      []string        `json:"ids"`
	Filter   exportFilter    `json:"filter"`
	MinScore *int            `json:"min_score"`
	Path     string          `json:"path"`
	Options  *export.Options `json:"options"`
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportRequest
		if !decodeBody(w, r, &req) {
			return
		}

		format := deps.DefaultFormat
		if req.Format != "" {
			format = export.Format(req.Format)
		}
		opts := deps.ExportOptions
		if req.Options != nil {
			opts = opts.Merge(*req.Options)
		}
		minScore := deps.MinScore
		if req.MinScore != nil {
			minScore = *req.MinScore
		}
		if minScore < 0 || minScore > 100 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "min_score must be between 0 and 100")
			return
		}

		run := export.Request{
			Format:   format,
			IDs:      req.IDs,
			MinScore: minScore,
			Path:     req.Path,
			Dir:      deps.ExportsDir,
			Options:  opts,
			Filter: storage.EntryFilter{
				Category: req.Filter.Category,
				Search:   req.Filter.Search,
			},
		}
		if req.Filter.SourceType != "" {
			st, err := storage.ParseSourceType(req.Filter.SourceType)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			run.Filter.SourceType = st
		}

		sum, err := export.Run(deps.Store, run, deps.now())
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			httpError(w, http.StatusBadRequest, "unsupported_format", "%v", err)
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "write_failure", "export failed: %v", err)
			return
		}

		deps.Logger.Info("export written", "path", sum.Path, "format", sum.Format, "records", sum.Records, "skipped", sum.Skipped)
		writeJSON(w, http.StatusOK, sum)
	}
}

func handleListExports(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hist, err := deps.Store.ListExportHistory(parseIntParam(r, "limit", 20, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list exports: %v", err)
			return
		}
		if hist == nil {
			hist = []storage.ExportRecord{}
		}
		writeJSON(w, http.StatusOK, hist)
	}
}

// LibraryStats is the payload of GET /stats and the library://stats resource.
type LibraryStats struct {
	storage.Stats
	Quality quality.Summary `json:"quality"`
}

// CollectStats reads the store counters and grades every entry.
func CollectStats(store *storage.Store) (LibraryStats, error) {
	st, err := store.Stats()
	if err != nil {
		return LibraryStats{}, err
	}
	entries, err := store.ListEntries(storage.EntryFilter{})
	if err != nil {
		return LibraryStats{}, err
	}
	contents := make([]string, len(entries))
	for i, e := range entries {
		contents[i] = e.Content
	}
	return LibraryStats{Stats: st, Quality: quality.Summarize(contents)}, nil
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := CollectStats(deps.Store)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

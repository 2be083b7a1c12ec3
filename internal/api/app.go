// Package api serves the local HTTP API and the MCP server over the entry
// library.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/export"
	"github.com/kalambet/loratk/internal/ingest"
	"github.com/kalambet/loratk/internal/storage"
)

type AppDeps struct {
	Store         *storage.Store
	Collector     *ingest.Collector
	Checker       *dedup.Checker
	Token         string
	ExportsDir    string
	ExportOptions export.Options
	DefaultFormat export.Format
	MinScore      int              // applied when an export request sets none
	Logger        *slog.Logger     // optional; defaults to slog.Default()
	Now           func() time.Time // optional; defaults to time.Now
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Checker == nil {
		deps.Checker = dedup.NewChecker(0, 0)
	}
	if deps.Collector == nil {
		deps.Collector = ingest.NewCollector(deps.Store, deps.Checker, true)
	}
	if deps.DefaultFormat == "" {
		deps.DefaultFormat = export.FormatAlpaca
	}

	r := chi.NewRouter()
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/entries", handleAddEntry(deps))
		r.Get("/entries", handleListEntries(deps))
		r.Get("/entries/{id}", handleGetEntry(deps))
		r.Patch("/entries/{id}", handleUpdateEntry(deps))
		r.Delete("/entries/{id}", handleDeleteEntry(deps))
		r.Post("/entries/{id}/score", handleScoreEntry(deps))

		r.Post("/score", handleScoreText)
		r.Post("/dedup/check", handleDedupCheck(deps))

		r.Post("/export", handleExport(deps))
		r.Get("/exports", handleListExports(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

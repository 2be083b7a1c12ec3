package export

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/kalambet/loratk/internal/storage"
)

// Library is the store surface an export run needs.
type Library interface {
	GetEntries(ids []string) ([]storage.Entry, error)
	ListEntries(f storage.EntryFilter) ([]storage.Entry, error)
	AddExportRecord(r storage.ExportRecord) (storage.ExportRecord, error)
}

// Request selects entries and says where the export goes. Entries are taken
// from IDs when set, otherwise from Filter in creation order. An empty Path
// writes DefaultFileName into Dir.
type Request struct {
	Format   Format              `json:"format"`
	IDs      []string            `json:"ids,omitempty"`
	Filter   storage.EntryFilter `json:"-"`
	MinScore int                 `json:"min_score,omitempty"`
	Path     string              `json:"path,omitempty"`
	Dir      string              `json:"-"`
	Options  Options             `json:"options"`
}

// Run selects entries, writes the file and records it in the export history.
func Run(lib Library, req Request, now time.Time) (Summary, error) {
	f, err := ParseFormat(string(req.Format))
	if err != nil {
		return Summary{}, err
	}

	entries, err := selectEntries(lib, req)
	if err != nil {
		return Summary{}, err
	}

	path := req.Path
	if path == "" {
		path = filepath.Join(req.Dir, DefaultFileName(f, now))
	}

	sum, err := ExportFile(path, entries, f, req.Options)
	if err != nil {
		return sum, err
	}

	if _, err := lib.AddExportRecord(storage.ExportRecord{
		Path:        sum.Path,
		Format:      string(sum.Format),
		EntryCount:  sum.Entries,
		RecordCount: sum.Records,
		Skipped:     sum.Skipped,
		CreatedAt:   now.UTC(),
	}); err != nil {
		slog.Warn("export written but history not recorded", "path", sum.Path, "error", err)
	}
	return sum, nil
}

func selectEntries(lib Library, req Request) ([]storage.Entry, error) {
	var entries []storage.Entry
	var err error
	if len(req.IDs) > 0 {
		entries, err = lib.GetEntries(req.IDs)
	} else {
		entries, err = lib.ListEntries(req.Filter)
		slices.Reverse(entries)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting entries: %w", err)
	}

	if req.MinScore <= 0 {
		return entries, nil
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.QualityScore != nil && *e.QualityScore >= req.MinScore {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

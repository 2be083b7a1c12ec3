package ingest

import (
	"context"
	"fmt"

	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ScoreStore is what Rescore reads from and writes to.
type ScoreStore interface {
	ListEntries(f storage.EntryFilter) ([]storage.Entry, error)
	SetQualityScore(id string, score int) error
}

// Rescore recomputes the score of every entry. Scores are computed with up to
// workers goroutines and written back one at a time. It returns the number of
// entries updated.
func Rescore(ctx context.Context, store ScoreStore, workers int) (int, error) {
	if workers <= 0 {
		workers = 4
	}

	entries, err := store.ListEntries(storage.EntryFilter{})
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	scores := make([]int, len(entries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, e := range entries {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			scores[i] = quality.Value(e.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	for i, e := range entries {
		if err := store.SetQualityScore(e.ID, scores[i]); err != nil {
			return i, fmt.Errorf("storing score for %s: %w", e.ID, err)
		}
	}
	return len(entries), nil
}

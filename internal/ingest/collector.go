// Package ingest is the entry point for producers feeding text into the
// library. It persists items, rejects duplicates and schedules scoring.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/loratk/internal/dedup"
	"github.com/kalambet/loratk/internal/storage"
)

// ErrDuplicate is returned when an item matches an entry already stored.
var ErrDuplicate = errors.New("duplicate entry")

// Item is what a producer hands over. Raw export lines decode into it too.
type Item struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	SourceType string   `json:"source_type"`
	SourceURL  string   `json:"source_url,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// AddResult reports the outcome of Collector.Add. Duplicate is set when the
// item was rejected (or, with SkipDuplicates off, when it was saved anyway).
type AddResult struct {
	Entry     storage.Entry `json:"entry"`
	Duplicate *dedup.Match  `json:"duplicate,omitempty"`
	Queued    bool          `json:"queued"`
}

// EntryStore is the subset of the store the collector needs.
type EntryStore interface {
	AddEntry(e storage.Entry) (storage.Entry, error)
	FindByURL(url string) (storage.Entry, error)
	ListEntries(f storage.EntryFilter) ([]storage.Entry, error)
	EnqueueJob(job storage.Job) error
}

// Collector saves items into the store.
type Collector struct {
	store          EntryStore
	checker        *dedup.Checker
	skipDuplicates bool
	logger         *slog.Logger
}

// NewCollector returns a Collector. A nil checker uses the default thresholds.
func NewCollector(store EntryStore, checker *dedup.Checker, skipDuplicates bool) *Collector {
	if checker == nil {
		checker = dedup.NewChecker(0, 0)
	}
	return &Collector{
		store:          store,
		checker:        checker,
		skipDuplicates: skipDuplicates,
		logger:         slog.Default(),
	}
}

// Add validates and saves one item, then enqueues it for scoring. An item
// whose source URL is already stored is always rejected with ErrDuplicate;
// near-duplicates are rejected only when SkipDuplicates is on.
func (c *Collector) Add(ctx context.Context, it Item) (AddResult, error) {
	if err := ctx.Err(); err != nil {
		return AddResult{}, err
	}

	st := strings.TrimSpace(it.SourceType)
	if st == "" {
		st = string(storage.SourcePaste)
	}
	sourceType, err := storage.ParseSourceType(st)
	if err != nil {
		return AddResult{}, err
	}

	candidate := storage.Entry{
		Title:      it.Title,
		Content:    it.Content,
		SourceType: sourceType,
		SourceURL:  strings.TrimSpace(it.SourceURL),
		Tags:       it.Tags,
		Category:   it.Category,
	}

	var res AddResult
	if candidate.SourceURL != "" {
		existing, err := c.store.FindByURL(candidate.SourceURL)
		switch {
		case err == nil:
			m := dedup.Match{ID: existing.ID, Title: existing.Title, Duplicate: true, Reason: "same source url"}
			return AddResult{Entry: existing, Duplicate: &m}, fmt.Errorf("%w: %s already stored as %s", ErrDuplicate, candidate.SourceURL, existing.ID)
		case !errors.Is(err, storage.ErrNotFound):
			return AddResult{}, fmt.Errorf("checking source url: %w", err)
		}
	}

	existing, err := c.store.ListEntries(storage.EntryFilter{})
	if err != nil {
		return AddResult{}, fmt.Errorf("loading entries for dedup: %w", err)
	}
	if m, ok := c.checker.FindDuplicate(candidate, existing); ok {
		if c.skipDuplicates {
			return AddResult{Duplicate: &m}, fmt.Errorf("%w: %s of %s", ErrDuplicate, m.Reason, m.ID)
		}
		res.Duplicate = &m
	}

	saved, err := c.store.AddEntry(candidate)
	if err != nil {
		return AddResult{}, err
	}
	res.Entry = saved

	job, err := scoreJob(uuid.New().String(), saved.ID)
	if err != nil {
		return res, fmt.Errorf("building score job: %w", err)
	}
	if err := c.store.EnqueueJob(job); err != nil {
		// The entry is stored; scoring can still be run by hand.
		c.logger.Warn("failed to enqueue scoring", "entry_id", saved.ID, "error", err)
		return res, nil
	}
	res.Queued = true
	return res, nil
}

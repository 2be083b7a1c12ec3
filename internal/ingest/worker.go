package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

// JobScoreEntry is the job type that computes and stores an entry's score.
const JobScoreEntry = "score_entry"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetEntry(id string) (storage.Entry, error)
	SetQualityScore(id string, score int) error
}

// Worker processes score_entry jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single score_entry job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobScoreEntry})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type scorePayload struct {
	EntryID string `json:"entry_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload scorePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := w.store.GetEntry(payload.EntryID)
	if err != nil {
		return fmt.Errorf("loading entry %s: %w", payload.EntryID, err)
	}

	r := quality.Score(e.Content)
	if err := w.store.SetQualityScore(e.ID, r.Overall); err != nil {
		return fmt.Errorf("storing score: %w", err)
	}
	w.logger.Debug("entry scored", "entry_id", e.ID, "score", r.Overall, "grade", r.Grade)
	return nil
}

// scoreJob builds the queue job for entryID.
func scoreJob(jobID, entryID string) (storage.Job, error) {
	payload, err := json.Marshal(scorePayload{EntryID: entryID})
	if err != nil {
		return storage.Job{}, err
	}
	return storage.Job{ID: jobID, Type: JobScoreEntry, PayloadJSON: string(payload)}, nil
}

package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/loratk/internal/storage"
)

const richText = `Server-side analytics compare player statistics against population baselines to flag improbable accuracy.
Replay review lets human moderators confirm suspicious behaviour before any ban is issued.
Developers also obfuscate network packets so that simple proxies cannot rewrite movement data.
Each approach has tradeoffs in privacy, performance, and the rate of false positives.
Teams usually publish transparency reports describing how many accounts were removed each season.`

// flakyStore fails SetQualityScore for the first failN calls.
type flakyStore struct {
	*storage.Store
	failN int32
	calls atomic.Int32
}

func (f *flakyStore) SetQualityScore(id string, score int) error {
	if n := f.calls.Add(1); n <= f.failN {
		return fmt.Errorf("transient error %d", n)
	}
	return f.Store.SetQualityScore(id, score)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, title, content string) (jobID, entryID string) {
	t.Helper()
	e, err := store.AddEntry(storage.Entry{Title: title, Content: content, SourceType: storage.SourcePaste})
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	job, err := scoreJob("job-"+e.ID, e.ID)
	if err != nil {
		t.Fatalf("scoreJob: %v", err)
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return job.ID, e.ID
}

// resetRunAfter makes the job immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Add(-time.Second).Format("2006-01-02T15:04:05.000000Z")
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("query job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	jobID, entryID := enqueueTestJob(t, store, "Analytics", richText)

	w := NewWorker(store, 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	e, err := store.GetEntry(entryID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if e.QualityScore == nil {
		t.Fatal("QualityScore is nil after processing")
	}
	if *e.QualityScore <= 0 || *e.QualityScore > 100 {
		t.Errorf("QualityScore = %d, want in (0,100]", *e.QualityScore)
	}
	if status, _ := jobStatus(t, store, jobID); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	w := NewWorker(openTestStore(t), 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true on an empty queue")
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	jobID, entryID := enqueueTestJob(t, store, "Retry", "retry content that should eventually be scored")

	w := NewWorker(&flakyStore{Store: store, failN: 2}, 0)
	ctx := context.Background()

	// 1st attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = %v, %v", didWork, err)
	}
	if status, attempts := jobStatus(t, store, jobID); status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}
	resetRunAfter(t, store, jobID)

	// 2nd attempt fails
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 2 = %v, %v", didWork, err)
	}
	if _, attempts := jobStatus(t, store, jobID); attempts != 2 {
		t.Errorf("after 2nd fail: attempts=%d, want 2", attempts)
	}
	resetRunAfter(t, store, jobID)

	// 3rd attempt succeeds
	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 3 = %v, %v", didWork, err)
	}
	if status, _ := jobStatus(t, store, jobID); status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", status)
	}
	if e, _ := store.GetEntry(entryID); e.QualityScore == nil {
		t.Error("score not stored after successful retry")
	}
}

func TestWorker_MissingEntryFailsPermanently(t *testing.T) {
	store := openTestStore(t)
	job, _ := scoreJob("job-ghost", "no-such-entry")
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, 0)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, job.ID)
		}
	}

	if status, _ := jobStatus(t, store, job.ID); status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

func TestWorker_ConcurrentEnqueue(t *testing.T) {
	store := openTestStore(t)

	const goroutines = 5
	const jobsPerGoroutine = 10
	const total = goroutines * jobsPerGoroutine

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				e, err := store.AddEntry(storage.Entry{
					Title:      fmt.Sprintf("doc %d-%d", g, j),
					Content:    fmt.Sprintf("content %d-%d", g, j),
					SourceType: storage.SourcePaste,
				})
				if err != nil {
					t.Errorf("AddEntry: %v", err)
					return
				}
				job, _ := scoreJob("job-"+e.ID, e.ID)
				if err := store.EnqueueJob(job); err != nil {
					t.Errorf("EnqueueJob: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	w := NewWorker(store, 0)
	processed := 0
	for {
		didWork, err := w.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if !didWork {
			break
		}
		processed++
	}
	if processed != total {
		t.Errorf("processed %d jobs, want %d", processed, total)
	}

	entries, err := store.ListEntries(storage.EntryFilter{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	for _, e := range entries {
		if e.QualityScore == nil {
			t.Errorf("entry %s left unscored", e.ID)
		}
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	w := NewWorker(openTestStore(t), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// Package audiocache downloads narration audio into a local cache so
// playback does not depend on the remote URL staying alive.
package audiocache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
)

// JobStore abstracts the job queue and lecture update operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	SetLectureAudioPath(id, path string) error
}

// AudioFetcher downloads audio bytes from a URL.
// Implemented by tutor.Client.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// Worker processes audio_fetch jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	fetcher AudioFetcher
	dir     string
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker caching files under dir.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, fetcher AudioFetcher, dir string, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		fetcher: fetcher,
		dir:     dir,
		poll:    pollInterval,
		logger:  slog.Default(),
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

// RunOnce claims and processes a single audio_fetch job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{pipeline.JobTypeAudioFetch})
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

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload pipeline.AudioFetchPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	data, err := w.fetcher.FetchAudio(ctx, payload.AudioURL)
	if err != nil {
		return fmt.Errorf("downloading audio: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	path := filepath.Join(w.dir, payload.LectureID+".mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	if err := w.store.SetLectureAudioPath(payload.LectureID, path); err != nil {
		return fmt.Errorf("recording cache path: %w", err)
	}

	w.logger.Debug("narration audio cached", "lecture_id", payload.LectureID, "path", path)
	return nil
}

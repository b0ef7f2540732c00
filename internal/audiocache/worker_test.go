package audiocache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
)

type mockFetcher struct {
	fetchFn func(ctx context.Context, url string) ([]byte, error)
}

func (m *mockFetcher) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	return m.fetchFn(ctx, url)
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

func enqueueTestJob(t *testing.T, store *storage.Store, lectureID, audioURL string) {
	t.Helper()
	lecture := storage.Lecture{
		ID:                 lectureID,
		ContextKey:         "engineering|junior",
		Topic:              "Security " + lectureID,
		SourceDocumentID:   "doc-1",
		SourceDocumentName: "handbook.pdf",
		RemoteSessionID:    "sess-1",
		SlideBullets:       []string{"Use 2FA"},
		NarrationScript:    "Today we cover security.",
		NarrationAudioURL:  audioURL,
		CreatedAt:          time.Now().UTC(),
	}
	if err := store.SaveLecture(lecture); err != nil {
		t.Fatalf("SaveLecture: %v", err)
	}
	payload, _ := json.Marshal(pipeline.AudioFetchPayload{LectureID: lectureID, AudioURL: audioURL})
	job := storage.Job{
		ID:          "job-" + lectureID,
		Type:        pipeline.JobTypeAudioFetch,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func TestWorker_CachesAudio(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "l1", "http://cdn.example.com/l1.mp3")

	dir := t.TempDir()
	w := NewWorker(store, &mockFetcher{
		fetchFn: func(_ context.Context, url string) ([]byte, error) {
			if url != "http://cdn.example.com/l1.mp3" {
				t.Errorf("fetch url = %q", url)
			}
			return []byte("mp3 bytes"), nil
		},
	}, dir, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	path := filepath.Join(dir, "l1.mp3")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cache file: %v", err)
	}
	if string(data) != "mp3 bytes" {
		t.Errorf("cache file = %q", data)
	}

	lecture, err := store.GetLecture("l1")
	if err != nil {
		t.Fatalf("GetLecture: %v", err)
	}
	if lecture.NarrationAudioPath != path {
		t.Errorf("NarrationAudioPath = %q, want %q", lecture.NarrationAudioPath, path)
	}
}

func TestWorker_NoJobIsIdle(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockFetcher{
		fetchFn: func(_ context.Context, _ string) ([]byte, error) {
			t.Fatal("fetcher called with no jobs queued")
			return nil, nil
		},
	}, t.TempDir(), 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true with an empty queue")
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "l2", "http://cdn.example.com/l2.mp3")

	var calls atomic.Int32
	w := NewWorker(store, &mockFetcher{
		fetchFn: func(_ context.Context, _ string) ([]byte, error) {
			if calls.Add(1) == 1 {
				return nil, fmt.Errorf("cdn timeout")
			}
			return []byte("mp3 bytes"), nil
		},
	}, t.TempDir(), 0)

	ctx := context.Background()

	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 1 = %v, %v", didWork, err)
	}

	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = 'job-l2'`).Scan(&status, &attempts); err != nil {
		t.Fatalf("query after 1st fail: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	resetRunAfter(t, store, "job-l2")

	if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
		t.Fatalf("RunOnce 2 = %v, %v", didWork, err)
	}
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-l2'`).Scan(&status); err != nil {
		t.Fatalf("query final status: %v", err)
	}
	if status != "completed" {
		t.Errorf("final status = %q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "l3", "http://cdn.example.com/l3.mp3")

	w := NewWorker(store, &mockFetcher{
		fetchFn: func(_ context.Context, _ string) ([]byte, error) {
			return nil, fmt.Errorf("permanent error")
		},
	}, t.TempDir(), 0)

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
			resetRunAfter(t, store, "job-l3")
		}
	}

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE id = 'job-l3'`).Scan(&status); err != nil {
		t.Fatalf("query final status: %v", err)
	}
	if status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

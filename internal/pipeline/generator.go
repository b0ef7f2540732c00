// Package pipeline orchestrates lecture generation: document ingestion,
// content generation, and audio synthesis against the tutoring service,
// followed by a single local commit.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/tutor"
)

// JobTypeAudioFetch is the queue job that downloads narration audio into
// the local cache after a lecture is committed.
const JobTypeAudioFetch = "audio_fetch"

var (
	// ErrEmptyTopic is returned when the requested topic is blank.
	ErrEmptyTopic = errors.New("topic is empty")
	// ErrNoDocument is returned when no document is selected.
	ErrNoDocument = errors.New("no document selected")
	// ErrDuplicateTopic is returned when a lecture on the topic already
	// exists for the selected document in the active context.
	ErrDuplicateTopic = errors.New("lecture already exists for this topic")
)

// DocumentSource provides the currently selected document.
// Implemented by registry.Registry.
type DocumentSource interface {
	Selected() (*storage.Document, error)
}

// ContextSource provides the active context key.
// Implemented by state.Manager.
type ContextSource interface {
	ContextKey() string
}

// Store defines the persistence the pipeline needs.
// Implemented by storage.Store.
type Store interface {
	ListLectures(contextKey string) ([]storage.Lecture, error)
	SaveLecture(l storage.Lecture) error
	EnqueueJob(job storage.Job) error
}

// TutorService is the remote generation surface.
// Implemented by tutor.Client.
type TutorService interface {
	Ingest(ctx context.Context, sessionID, filename string, content []byte) error
	GenerateLecture(ctx context.Context, sessionID, topic string) (*tutor.Lecture, error)
	SynthesizeAudio(ctx context.Context, lecture *tutor.Lecture) (*tutor.Narration, error)
}

// AudioFetchPayload is the JSON payload of a JobTypeAudioFetch job.
type AudioFetchPayload struct {
	LectureID string `json:"lecture_id"`
	AudioURL  string `json:"audio_url"`
}

// Generator runs the three-step generation sequence. Each step must
// succeed before the next starts; a failure at any step aborts the run
// and leaves the catalog untouched.
type Generator struct {
	documents DocumentSource
	context   ContextSource
	store     Store
	service   TutorService
	logger    *slog.Logger
}

func NewGenerator(documents DocumentSource, context ContextSource, store Store, service TutorService) *Generator {
	return &Generator{
		documents: documents,
		context:   context,
		store:     store,
		service:   service,
		logger:    slog.Default(),
	}
}

// Generate produces a lecture on topic from the selected document and
// commits it to the active context's catalog. Topic matching for the
// duplicate check ignores case; the comparison is scoped to the selected
// document within the active context, so the same topic under another
// context or another document is allowed.
func (g *Generator) Generate(ctx context.Context, topic string) (*storage.Lecture, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	doc, err := g.documents.Selected()
	if err != nil {
		return nil, fmt.Errorf("resolving selected document: %w", err)
	}
	if doc == nil {
		return nil, ErrNoDocument
	}

	contextKey := g.context.ContextKey()

	// Check for an existing lecture before touching the service: a
	// duplicate request must not cost a generation run.
	existing, err := g.store.ListLectures(contextKey)
	if err != nil {
		return nil, fmt.Errorf("checking existing lectures: %w", err)
	}
	for _, l := range existing {
		if l.SourceDocumentID == doc.ID && strings.EqualFold(l.Topic, topic) {
			return nil, ErrDuplicateTopic
		}
	}

	sessionID := uuid.NewString()
	start := time.Now()

	if err := g.service.Ingest(ctx, sessionID, doc.Name, doc.Content); err != nil {
		return nil, fmt.Errorf("step 1 of 3: %w", err)
	}

	generated, err := g.service.GenerateLecture(ctx, sessionID, topic)
	if err != nil {
		return nil, fmt.Errorf("step 2 of 3: %w", err)
	}

	narration, err := g.service.SynthesizeAudio(ctx, generated)
	if err != nil {
		return nil, fmt.Errorf("step 3 of 3: %w", err)
	}

	lecture := storage.Lecture{
		ID:                 uuid.NewString(),
		ContextKey:         contextKey,
		Topic:              topic,
		SourceDocumentID:   doc.ID,
		SourceDocumentName: doc.Name,
		RemoteSessionID:    sessionID,
		SlideBullets:       generated.SlideContent,
		NarrationScript:    generated.Script,
		NarrationAudioURL:  narration.AudioURL,
		Completion:         0,
		CreatedAt:          time.Now().UTC(),
	}

	if err := g.store.SaveLecture(lecture); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// A concurrent run committed the same topic first.
			return nil, ErrDuplicateTopic
		}
		return nil, fmt.Errorf("saving lecture: %w", err)
	}

	if narration.AudioURL != "" {
		payload, err := json.Marshal(AudioFetchPayload{LectureID: lecture.ID, AudioURL: narration.AudioURL})
		if err != nil {
			return nil, fmt.Errorf("encoding audio fetch payload: %w", err)
		}
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        JobTypeAudioFetch,
			PayloadJSON: string(payload),
			MaxAttempts: 3,
		}
		if err := g.store.EnqueueJob(job); err != nil {
			// The lecture is committed; streaming from the remote URL still
			// works without the local copy.
			g.logger.Warn("enqueueing audio fetch", "lecture_id", lecture.ID, "error", err)
		}
	}

	g.logger.Info("lecture generated",
		"topic", topic,
		"context", contextKey,
		"document", doc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &lecture, nil
}

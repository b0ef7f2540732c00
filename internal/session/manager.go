// Package session runs the interactive Q&A session attached to one
// lecture at a time. Turns are strictly sequential: a new question is
// refused while the previous answer is still pending.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/tutor"
)

var (
	// ErrNoActiveLecture is returned when no session is open.
	ErrNoActiveLecture = errors.New("no active lecture session")
	// ErrTurnInFlight is returned while a previous question is awaiting
	// its answer.
	ErrTurnInFlight = errors.New("previous question still awaiting answer")
	// ErrEmptyQuestion is returned for a blank text question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrSessionChanged is returned when the session was closed or
	// replaced while the answer was in flight. The late answer is
	// discarded.
	ErrSessionChanged = errors.New("session changed before the answer arrived")
)

// Turn is one completed question/answer exchange. Question holds the
// transcription when the question was spoken.
type Turn struct {
	Index           int
	Question        string
	Voice           bool
	Answer          string
	AudioURL        string
	SourceDocuments []string
	AskedAt         time.Time
}

// LectureSource resolves lectures visible in the active context.
// Implemented by lectures.Catalog.
type LectureSource interface {
	Get(id string) (storage.Lecture, error)
}

// TutorService answers questions against an ingested session.
// Implemented by tutor.Client.
type TutorService interface {
	AskText(ctx context.Context, sessionID, question string) (*tutor.Answer, error)
	AskVoice(ctx context.Context, sessionID string, recording []byte) (*tutor.Answer, error)
}

// Silencer stops any audio before the session takes over the output.
// Implemented by playback.Arbiter.
type Silencer interface {
	Stop()
}

// Manager holds the single active session. The mutex is released while
// a question is on the wire, so opening or closing the session never
// waits on the network; an answer that returns to a changed session is
// discarded by comparing epochs.
type Manager struct {
	lectures LectureSource
	service  TutorService
	playback Silencer
	logger   *slog.Logger

	mu       sync.Mutex
	epoch    uint64
	lecture  *storage.Lecture
	turns    []Turn
	awaiting bool
}

func NewManager(lectures LectureSource, service TutorService, playback Silencer) *Manager {
	return &Manager{
		lectures: lectures,
		service:  service,
		playback: playback,
		logger:   slog.Default(),
	}
}

// Open starts a session on the given lecture, replacing any session
// already open. Whatever audio is playing stops; the turn history starts
// empty.
func (m *Manager) Open(lectureID string) (storage.Lecture, error) {
	lecture, err := m.lectures.Get(lectureID)
	if err != nil {
		return storage.Lecture{}, fmt.Errorf("loading lecture: %w", err)
	}

	m.playback.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.lecture = &lecture
	m.turns = nil
	m.awaiting = false
	m.logger.Info("session opened", "lecture_id", lecture.ID, "topic", lecture.Topic)
	return lecture, nil
}

// Close ends the active session, if any. Audio stops; the turn history
// is dropped.
func (m *Manager) Close() {
	m.playback.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lecture != nil {
		m.logger.Info("session closed", "lecture_id", m.lecture.ID)
	}
	m.epoch++
	m.lecture = nil
	m.turns = nil
	m.awaiting = false
}

// Active returns the lecture the session is attached to, or false.
func (m *Manager) Active() (storage.Lecture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lecture == nil {
		return storage.Lecture{}, false
	}
	return *m.lecture, true
}

// Awaiting reports whether a question is currently on the wire.
func (m *Manager) Awaiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awaiting
}

// Turns returns the completed turns of the active session in order.
func (m *Manager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// AskText submits a typed question and blocks until the answer arrives.
func (m *Manager) AskText(ctx context.Context, question string) (Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Turn{}, ErrEmptyQuestion
	}
	return m.ask(ctx, func(ctx context.Context, sessionID string) (*tutor.Answer, error) {
		return m.service.AskText(ctx, sessionID, question)
	}, false)
}

// AskVoice submits a recorded question and blocks until the answer,
// including the transcription, arrives.
func (m *Manager) AskVoice(ctx context.Context, recording []byte) (Turn, error) {
	if len(recording) == 0 {
		return Turn{}, ErrEmptyQuestion
	}
	return m.ask(ctx, func(ctx context.Context, sessionID string) (*tutor.Answer, error) {
		return m.service.AskVoice(ctx, sessionID, recording)
	}, true)
}

func (m *Manager) ask(ctx context.Context, send func(ctx context.Context, sessionID string) (*tutor.Answer, error), voice bool) (Turn, error) {
	m.mu.Lock()
	if m.lecture == nil {
		m.mu.Unlock()
		return Turn{}, ErrNoActiveLecture
	}
	if m.awaiting {
		m.mu.Unlock()
		return Turn{}, ErrTurnInFlight
	}
	epoch := m.epoch
	sessionID := m.lecture.RemoteSessionID
	m.awaiting = true
	m.mu.Unlock()

	askedAt := time.Now().UTC()
	answer, err := send(ctx, sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		// The session moved on while we were waiting; the gate belongs to
		// the new session now, so leave it alone and drop the result.
		m.logger.Debug("discarding late answer", "session_epoch", epoch)
		return Turn{}, ErrSessionChanged
	}
	m.awaiting = false

	if err != nil {
		return Turn{}, fmt.Errorf("asking question: %w", err)
	}

	turn := Turn{
		Index:           len(m.turns),
		Question:        answer.Question,
		Voice:           voice,
		Answer:          answer.Answer,
		AudioURL:        answer.AudioURL,
		SourceDocuments: answer.SourceDocuments,
		AskedAt:         askedAt,
	}
	m.turns = append(m.turns, turn)
	return turn, nil
}

package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is an uploaded reference document. Content holds the raw file
// bytes; Preview is a short plain-text excerpt used for listings.
type Document struct {
	ID        string
	Name      string
	Content   []byte
	Preview   string
	CreatedAt time.Time
}

// Lecture is one generated unit of learning content, scoped to the
// (industry, role) context it was created under.
type Lecture struct {
	ID                 string
	ContextKey         string
	Topic              string
	SourceDocumentID   string
	SourceDocumentName string
	RemoteSessionID    string
	SlideBullets       []string
	NarrationScript    string
	NarrationAudioURL  string
	// NarrationAudioPath is the local cache file, empty until the audio
	// fetch job has run.
	NarrationAudioPath string
	Completion         int
	CreatedAt          time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Package api exposes the daemon's localhost HTTP surface and the MCP
// server. Every route except /health requires the shared bearer token.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/lectern/internal/lectures"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/playback"
	"github.com/kalambet/lectern/internal/registry"
	"github.com/kalambet/lectern/internal/session"
	"github.com/kalambet/lectern/internal/state"
	"github.com/kalambet/lectern/internal/taxonomy"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxUploadBodySize = 25 << 20  // 25MB
const maxRecordingBodySize = 5 << 20

// TutorAdmin covers the remote session maintenance calls the handlers
// make outside the generation and Q&A paths.
// Implemented by tutor.Client.
type TutorAdmin interface {
	RemoteDocuments(ctx context.Context, sessionID string) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type Deps struct {
	State     *state.Manager
	Taxonomy  *taxonomy.Catalog
	Registry  *registry.Registry
	Generator *pipeline.Generator
	Catalog   *lectures.Catalog
	Sessions  *session.Manager
	Playback  *playback.Arbiter
	Tutor     TutorAdmin
	Token     string
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/onboarding", handleGetOnboarding(deps))
		r.Post("/onboarding", handleCompleteOnboarding(deps))
		r.Get("/topics", handleTopics(deps))

		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Post("/documents/{id}/select", handleSelectDocument(deps))
		r.Post("/documents/deselect", handleDeselectDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))

		r.Post("/lectures", handleGenerateLecture(deps))
		r.Get("/lectures", handleListLectures(deps))
		r.Get("/lectures/{id}", handleGetLecture(deps))
		r.Delete("/lectures/{id}", handleDeleteLecture(deps))
		r.Patch("/lectures/{id}/completion", handleSetCompletion(deps))
		r.Post("/lectures/{id}/playback/toggle", handleToggleNarration(deps))

		r.Get("/playback", handlePlaybackStatus(deps))
		r.Post("/playback/stop", handlePlaybackStop(deps))

		r.Post("/session", handleOpenSession(deps))
		r.Get("/session", handleGetSession(deps))
		r.Delete("/session", handleCloseSession(deps))
		r.Get("/session/documents", handleSessionDocuments(deps))
		r.Post("/session/ask", handleAskText(deps))
		r.Post("/session/ask-voice", handleAskVoice(deps))
		r.Post("/session/turns/{index}/playback/toggle", handleToggleAnswer(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

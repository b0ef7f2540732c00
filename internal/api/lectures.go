package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/playback"
	"github.com/kalambet/lectern/internal/storage"
)

type lectureView struct {
	ID                 string   `json:"id"`
	Topic              string   `json:"topic"`
	SourceDocumentID   string   `json:"source_document_id"`
	SourceDocumentName string   `json:"source_document_name"`
	SlideBullets       []string `json:"slide_bullets"`
	NarrationScript    string   `json:"narration_script"`
	AudioCached        bool     `json:"audio_cached"`
	Completion         int      `json:"completion"`
	CreatedAt          string   `json:"created_at"`
}

func lectureToView(l storage.Lecture) lectureView {
	return lectureView{
		ID:                 l.ID,
		Topic:              l.Topic,
		SourceDocumentID:   l.SourceDocumentID,
		SourceDocumentName: l.SourceDocumentName,
		SlideBullets:       l.SlideBullets,
		NarrationScript:    l.NarrationScript,
		AudioCached:        l.NarrationAudioPath != "",
		Completion:         l.Completion,
		CreatedAt:          l.CreatedAt.Format(time.RFC3339),
	}
}

type generateRequest struct {
	Topic string `json:"topic"`
}

func handleGenerateLecture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		lecture, err := deps.Generator.Generate(r.Context(), req.Topic)
		switch {
		case errors.Is(err, pipeline.ErrEmptyTopic):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "topic is required")
			return
		case errors.Is(err, pipeline.ErrNoDocument):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no document selected; upload or select one first")
			return
		case errors.Is(err, pipeline.ErrDuplicateTopic):
			httpError(w, http.StatusConflict, "conflict", "a lecture on this topic already exists for the selected document")
			return
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			return
		}

		writeJSON(w, lectureToView(*lecture))
	}
}

type lectureGroupView struct {
	DocumentID   string        `json:"document_id"`
	DocumentName string        `json:"document_name"`
	Lectures     []lectureView `json:"lectures"`
}

func handleListLectures(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("group") == "document" {
			groups, err := deps.Catalog.ByDocument()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "listing lectures: %v", err)
				return
			}
			views := make([]lectureGroupView, len(groups))
			for i, g := range groups {
				gv := lectureGroupView{
					DocumentID:   g.DocumentID,
					DocumentName: g.DocumentName,
					Lectures:     make([]lectureView, len(g.Lectures)),
				}
				for j, l := range g.Lectures {
					gv.Lectures[j] = lectureToView(l)
				}
				views[i] = gv
			}
			writeJSON(w, views)
			return
		}

		all, err := deps.Catalog.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing lectures: %v", err)
			return
		}
		views := make([]lectureView, len(all))
		for i, l := range all {
			views[i] = lectureToView(l)
		}
		writeJSON(w, views)
	}
}

func handleGetLecture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, err := deps.Catalog.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lecture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading lecture: %v", err)
			return
		}
		writeJSON(w, lectureToView(lecture))
	}
}

func handleDeleteLecture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, err := deps.Catalog.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lecture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading lecture: %v", err)
			return
		}

		if err := deps.Catalog.Delete(lecture.SourceDocumentID, lecture.Topic); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting lecture: %v", err)
			return
		}

		// Best effort: the remote session only backs this lecture's Q&A.
		if lecture.RemoteSessionID != "" {
			if err := deps.Tutor.DeleteSession(r.Context(), lecture.RemoteSessionID); err != nil {
				slog.Warn("remote session cleanup failed", "lecture", lecture.ID, "error", err)
			}
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

type completionRequest struct {
	Percent int `json:"percent"`
}

func handleSetCompletion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := deps.Catalog.SetCompletion(chi.URLParam(r, "id"), req.Percent)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lecture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving completion: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

// narrationMedia picks the local cache file when the fetch job has run,
// otherwise the remote URL.
func narrationMedia(l storage.Lecture) string {
	if l.NarrationAudioPath != "" {
		return l.NarrationAudioPath
	}
	return l.NarrationAudioURL
}

func handleToggleNarration(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, err := deps.Catalog.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "lecture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading lecture: %v", err)
			return
		}
		media := narrationMedia(lecture)
		if media == "" {
			httpError(w, http.StatusConflict, "conflict", "lecture has no narration audio")
			return
		}

		playing, err := deps.Playback.Toggle(playback.NarrationSource(lecture.ID), media)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "toggling playback: %v", err)
			return
		}
		writeJSON(w, map[string]any{"playing": playing, "source": string(playback.NarrationSource(lecture.ID))})
	}
}

func handlePlaybackStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current := deps.Playback.Current()
		writeJSON(w, map[string]any{
			"playing": current != "",
			"source":  string(current),
		})
	}
}

func handlePlaybackStop(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Playback.Stop()
		writeJSON(w, map[string]string{"status": "stopped"})
	}
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/lectern/internal/playback"
	"github.com/kalambet/lectern/internal/session"
)

type turnView struct {
	Index           int      `json:"index"`
	Question        string   `json:"question"`
	Voice           bool     `json:"voice"`
	Answer          string   `json:"answer"`
	HasAudio        bool     `json:"has_audio"`
	SourceDocuments []string `json:"source_documents,omitempty"`
	AskedAt         string   `json:"asked_at"`
}

func turnToView(t session.Turn) turnView {
	return turnView{
		Index:           t.Index,
		Question:        t.Question,
		Voice:           t.Voice,
		Answer:          t.Answer,
		HasAudio:        t.AudioURL != "",
		SourceDocuments: t.SourceDocuments,
		AskedAt:         t.AskedAt.Format(time.RFC3339),
	}
}

type openSessionRequest struct {
	LectureID string `json:"lecture_id"`
}

func handleOpenSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req openSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		lecture, err := deps.Sessions.Open(req.LectureID)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "lecture not found")
			return
		}
		writeJSON(w, map[string]any{
			"status":  "open",
			"lecture": lectureToView(lecture),
		})
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, ok := deps.Sessions.Active()
		if !ok {
			writeJSON(w, map[string]any{"active": false})
			return
		}
		turns := deps.Sessions.Turns()
		views := make([]turnView, len(turns))
		for i, t := range turns {
			views[i] = turnToView(t)
		}
		writeJSON(w, map[string]any{
			"active":   true,
			"awaiting": deps.Sessions.Awaiting(),
			"lecture":  lectureToView(lecture),
			"turns":    views,
		})
	}
}

func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.Close()
		writeJSON(w, map[string]string{"status": "closed"})
	}
}

// handleSessionDocuments lists the filenames the remote side holds for
// the open session, which is what Q&A answers draw from.
func handleSessionDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, ok := deps.Sessions.Active()
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no lecture session is open")
			return
		}

		docs, err := deps.Tutor.RemoteDocuments(r.Context(), lecture.RemoteSessionID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "listing session documents: %v", err)
			return
		}
		if docs == nil {
			docs = []string{}
		}
		writeJSON(w, map[string]any{"session_id": lecture.RemoteSessionID, "documents": docs})
	}
}

func sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoActiveLecture):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "no lecture session is open")
	case errors.Is(err, session.ErrEmptyQuestion):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "question is empty")
	case errors.Is(err, session.ErrTurnInFlight):
		httpError(w, http.StatusConflict, "conflict", "previous question is still awaiting its answer")
	case errors.Is(err, session.ErrSessionChanged):
		httpError(w, http.StatusConflict, "conflict", "session changed before the answer arrived")
	default:
		httpError(w, http.StatusBadGateway, "api_error", "question failed: %v", err)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

func handleAskText(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		turn, err := deps.Sessions.AskText(r.Context(), req.Question)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, turnToView(turn))
	}
}

func handleAskVoice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRecordingBodySize)
		if err := r.ParseMultipartForm(maxRecordingBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, _, err := r.FormFile("audio_file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio_file is required")
			return
		}
		defer file.Close()

		recording, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading recording: %v", err)
			return
		}

		turn, err := deps.Sessions.AskVoice(r.Context(), recording)
		if err != nil {
			sessionError(w, err)
			return
		}
		writeJSON(w, turnToView(turn))
	}
}

func handleToggleAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lecture, ok := deps.Sessions.Active()
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no lecture session is open")
			return
		}

		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil || index < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid turn index")
			return
		}
		turns := deps.Sessions.Turns()
		if index >= len(turns) {
			httpError(w, http.StatusNotFound, "not_found", "turn not found")
			return
		}
		turn := turns[index]
		if turn.AudioURL == "" {
			httpError(w, http.StatusConflict, "conflict", "turn has no answer audio")
			return
		}

		source := playback.AnswerSource(lecture.ID, turn.Index)
		playing, err := deps.Playback.Toggle(source, turn.AudioURL)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "toggling playback: %v", err)
			return
		}
		writeJSON(w, map[string]any{"playing": playing, "source": string(source)})
	}
}

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/lectern/internal/registry"
	"github.com/kalambet/lectern/internal/storage"
)

type documentView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Preview   string `json:"preview,omitempty"`
	Selected  bool   `json:"selected"`
	CreatedAt string `json:"created_at"`
}

func documentToView(d storage.Document, selectedID string) documentView {
	return documentView{
		ID:        d.ID,
		Name:      d.Name,
		Preview:   d.Preview,
		Selected:  d.ID == selectedID,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
}

func selectedID(deps Deps) string {
	sel, err := deps.Registry.Selected()
	if err != nil || sel == nil {
		return ""
	}
	return sel.ID
}

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		doc, err := deps.Registry.Add(header.Filename, content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing document: %v", err)
			return
		}

		writeJSON(w, documentToView(*doc, doc.ID))
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Registry.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		sel := selectedID(deps)
		views := make([]documentView, len(docs))
		for i, d := range docs {
			views[i] = documentToView(d, sel)
		}
		writeJSON(w, views)
	}
}

func handleSelectDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Registry.Select(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "selecting document: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "selected", "id": id})
	}
}

func handleDeselectDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Registry.Deselect(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing selection: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deselected"})
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Registry.Delete(id)
		if errors.Is(err, registry.ErrDocumentSelected) {
			httpError(w, http.StatusConflict, "conflict", "document is currently selected; select another or deselect first")
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

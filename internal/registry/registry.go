// Package registry manages the uploaded reference documents and the
// single-document selection the generation pipeline reads from.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/lectern/internal/storage"
)

const keySelectedDocument = "selected_document_id"

// previewLimit caps the stored preview text in runes.
const previewLimit = 400

// ErrDocumentSelected is returned when deletion targets the currently
// selected document.
var ErrDocumentSelected = errors.New("document is currently selected")

// Store defines the persistence the registry needs.
// Implemented by storage.Store.
type Store interface {
	SaveDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	ListDocuments() ([]storage.Document, error)
	DeleteDocument(id string) error
	GetStateKey(key string) (string, error)
	SetStateKey(key, value string) error
	DeleteStateKey(key string) error
}

// Registry owns the document list and the selection pointer. The
// selection always refers to a document that exists; deleting the
// selected document is refused, and a dangling pointer found at read
// time is cleared.
type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Add stores a new document and makes it the current selection. The
// returned document carries a generated id and an extracted text
// preview.
func (r *Registry) Add(name string, content []byte) (*storage.Document, error) {
	if name == "" {
		return nil, errors.New("document name is empty")
	}
	doc := storage.Document{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		Preview:   extractPreview(name, content),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if err := r.store.SetStateKey(keySelectedDocument, doc.ID); err != nil {
		return nil, fmt.Errorf("selecting document: %w", err)
	}
	return &doc, nil
}

// List returns all documents in upload order.
func (r *Registry) List() ([]storage.Document, error) {
	return r.store.ListDocuments()
}

// Get returns a document by id.
func (r *Registry) Get(id string) (storage.Document, error) {
	return r.store.GetDocument(id)
}

// Select makes the given document the current selection.
func (r *Registry) Select(id string) error {
	if _, err := r.store.GetDocument(id); err != nil {
		return fmt.Errorf("looking up document: %w", err)
	}
	if err := r.store.SetStateKey(keySelectedDocument, id); err != nil {
		return fmt.Errorf("selecting document: %w", err)
	}
	return nil
}

// Deselect clears the selection without touching any document.
func (r *Registry) Deselect() error {
	if err := r.store.DeleteStateKey(keySelectedDocument); err != nil {
		return fmt.Errorf("clearing selection: %w", err)
	}
	return nil
}

// Selected returns the currently selected document, or nil when nothing
// is selected. A selection pointing at a document that no longer exists
// is treated as no selection and cleared.
func (r *Registry) Selected() (*storage.Document, error) {
	id, err := r.store.GetStateKey(keySelectedDocument)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading selection: %w", err)
	}
	doc, err := r.store.GetDocument(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("selection points at missing document, clearing", "id", id)
			if err := r.store.DeleteStateKey(keySelectedDocument); err != nil {
				return nil, fmt.Errorf("clearing stale selection: %w", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("loading selected document: %w", err)
	}
	return &doc, nil
}

// Delete removes a document. The currently selected document cannot be
// deleted; deselect or select another document first. Deleting a
// document that does not exist reports storage.ErrNotFound.
func (r *Registry) Delete(id string) error {
	selected, err := r.store.GetStateKey(keySelectedDocument)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("reading selection: %w", err)
	}
	if err == nil && selected == id {
		return ErrDocumentSelected
	}
	if err := r.store.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// extractPreview pulls leading text out of the document for display in
// listings. PDF content goes through a real text extraction; anything
// else is treated as plain text if it decodes as UTF-8.
func extractPreview(name string, content []byte) string {
	var text string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text = pdfText(content)
	default:
		if utf8.Valid(content) {
			text = string(content)
		}
	}
	return clipPreview(text)
}

func pdfText(content []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		slog.Warn("parsing pdf for preview", "error", err)
		return ""
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage() && b.Len() < previewLimit*4; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(txt)
		b.WriteString(" ")
	}
	return b.String()
}

func clipPreview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "…"
}

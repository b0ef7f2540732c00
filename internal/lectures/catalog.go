// Package lectures exposes the generated-lecture catalog, always scoped
// to the active (industry, role) context.
package lectures

import (
	"fmt"

	"github.com/kalambet/lectern/internal/storage"
)

// Store defines the persistence the catalog needs.
// Implemented by storage.Store.
type Store interface {
	ListLectures(contextKey string) ([]storage.Lecture, error)
	GetLecture(id string) (storage.Lecture, error)
	DeleteLecture(contextKey, documentID, topic string) error
	SetLectureCompletion(id string, percent int) error
}

// ContextSource provides the active context key.
// Implemented by state.Manager.
type ContextSource interface {
	ContextKey() string
}

// DocumentGroup is the catalog view grouped by source document, in the
// order documents first appear in the catalog.
type DocumentGroup struct {
	DocumentID   string
	DocumentName string
	Lectures     []storage.Lecture
}

// Catalog reads and prunes lectures for the active context. Lectures
// from other contexts are never visible through it.
type Catalog struct {
	store   Store
	context ContextSource
}

func NewCatalog(store Store, context ContextSource) *Catalog {
	return &Catalog{store: store, context: context}
}

// List returns the active context's lectures in creation order.
func (c *Catalog) List() ([]storage.Lecture, error) {
	return c.store.ListLectures(c.context.ContextKey())
}

// ByDocument groups the active context's lectures by source document.
// Groups whose document was deleted from the registry still appear; the
// lectures keep the document name captured at generation time.
func (c *Catalog) ByDocument() ([]DocumentGroup, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}

	var groups []DocumentGroup
	index := make(map[string]int)
	for _, l := range all {
		i, ok := index[l.SourceDocumentID]
		if !ok {
			i = len(groups)
			index[l.SourceDocumentID] = i
			groups = append(groups, DocumentGroup{
				DocumentID:   l.SourceDocumentID,
				DocumentName: l.SourceDocumentName,
			})
		}
		groups[i].Lectures = append(groups[i].Lectures, l)
	}
	return groups, nil
}

// Get returns a lecture by id. Lectures belonging to another context
// report storage.ErrNotFound, the same as lectures that do not exist.
func (c *Catalog) Get(id string) (storage.Lecture, error) {
	l, err := c.store.GetLecture(id)
	if err != nil {
		return storage.Lecture{}, err
	}
	if l.ContextKey != c.context.ContextKey() {
		return storage.Lecture{}, storage.ErrNotFound
	}
	return l, nil
}

// Delete removes the lecture on topic under documentID from the active
// context. The topic match is exact.
func (c *Catalog) Delete(documentID, topic string) error {
	if err := c.store.DeleteLecture(c.context.ContextKey(), documentID, topic); err != nil {
		return fmt.Errorf("deleting lecture: %w", err)
	}
	return nil
}

// SetCompletion records playback progress for a lecture in the active
// context. Progress only moves forward; a lower percentage than the
// stored one is ignored.
func (c *Catalog) SetCompletion(id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	current, err := c.Get(id)
	if err != nil {
		return err
	}
	if percent <= current.Completion {
		return nil
	}
	return c.store.SetLectureCompletion(id, percent)
}

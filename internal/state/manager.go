// Package state holds the onboarding context: the industry and role the
// user selected, the onboarding-complete flag, and the context key that
// partitions lecture storage. Values persist immediately on every change
// and rehydrate from storage on each read.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/lectern/internal/storage"
)

const (
	keyIndustry     = "industry"
	keyRole         = "role"
	keyHasOnboarded = "has_onboarded"
)

// Store defines the scalar persistence the Manager needs.
// Implemented by storage.Store.
type Store interface {
	GetStateKey(key string) (string, error)
	SetStateKey(key, value string) error
}

// TopicSource resolves the derived topic list for a context.
// Implemented by taxonomy.Catalog.
type TopicSource interface {
	Topics(industry, role string) []string
}

// Manager is the explicit context-store object shared by the components
// that need the active (industry, role) selection. Missing or unreadable
// state never fails a read; it falls back to neutral defaults.
type Manager struct {
	store  Store
	topics TopicSource
	mu     sync.Mutex
}

func NewManager(store Store, topics TopicSource) *Manager {
	return &Manager{store: store, topics: topics}
}

func (m *Manager) read(key string) string {
	v, err := m.store.GetStateKey(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("reading app state, using default", "key", key, "error", err)
		}
		return ""
	}
	return v
}

// Industry returns the active industry, or "" before onboarding.
func (m *Manager) Industry() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(keyIndustry)
}

func (m *Manager) SetIndustry(industry string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetStateKey(keyIndustry, industry); err != nil {
		return fmt.Errorf("persisting industry: %w", err)
	}
	return nil
}

// Role returns the active role, or "" before onboarding.
func (m *Manager) Role() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(keyRole)
}

func (m *Manager) SetRole(role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetStateKey(keyRole, role); err != nil {
		return fmt.Errorf("persisting role: %w", err)
	}
	return nil
}

func (m *Manager) HasOnboarded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(keyHasOnboarded) == "true"
}

// CompleteOnboarding marks onboarding as done. The transition is one-way.
func (m *Manager) CompleteOnboarding() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SetStateKey(keyHasOnboarded, "true"); err != nil {
		return fmt.Errorf("persisting onboarding flag: %w", err)
	}
	return nil
}

// ContextKey derives the storage partition key for the active selection.
// Lectures created under one key are invisible under any other.
func (m *Manager) ContextKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(keyIndustry) + "|" + m.read(keyRole)
}

// Topics returns the suggested topic list derived from the active
// (industry, role) pair. Changing either selection changes the result on
// the next call; there is no cached copy to invalidate.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	industry := m.read(keyIndustry)
	role := m.read(keyRole)
	m.mu.Unlock()

	if industry == "" || role == "" {
		return nil
	}
	return m.topics.Topics(industry, role)
}

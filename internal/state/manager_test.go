package state

import (
	"errors"
	"testing"

	"github.com/kalambet/lectern/internal/storage"
)

type fakeStore struct {
	values map[string]string
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (s *fakeStore) GetStateKey(key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) SetStateKey(key, value string) error {
	s.values[key] = value
	return nil
}

type fakeTopics struct {
	byPair map[string][]string
}

func (t *fakeTopics) Topics(industry, role string) []string {
	return t.byPair[industry+"|"+role]
}

func newManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	topics := &fakeTopics{byPair: map[string][]string{
		"engineering|junior": {"Version Control Basics", "Code Review Etiquette"},
		"healthcare|it":      {"HIPAA Fundamentals"},
	}}
	return NewManager(store, topics), store
}

func TestDefaultsBeforeOnboarding(t *testing.T) {
	m, _ := newManager(t)

	if got := m.Industry(); got != "" {
		t.Errorf("Industry() = %q, want empty", got)
	}
	if got := m.Role(); got != "" {
		t.Errorf("Role() = %q, want empty", got)
	}
	if m.HasOnboarded() {
		t.Error("HasOnboarded() = true before onboarding")
	}
	if got := m.Topics(); got != nil {
		t.Errorf("Topics() = %v, want nil", got)
	}
}

func TestSelectionPersistsImmediately(t *testing.T) {
	m, store := newManager(t)

	if err := m.SetIndustry("engineering"); err != nil {
		t.Fatalf("SetIndustry: %v", err)
	}
	if err := m.SetRole("junior"); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	if store.values["industry"] != "engineering" {
		t.Errorf("persisted industry = %q", store.values["industry"])
	}
	if store.values["role"] != "junior" {
		t.Errorf("persisted role = %q", store.values["role"])
	}
	if got := m.Industry(); got != "engineering" {
		t.Errorf("Industry() = %q", got)
	}
}

func TestContextKey(t *testing.T) {
	m, _ := newManager(t)

	if err := m.SetIndustry("healthcare"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetRole("it"); err != nil {
		t.Fatal(err)
	}

	if got := m.ContextKey(); got != "healthcare|it" {
		t.Errorf("ContextKey() = %q, want %q", got, "healthcare|it")
	}
}

func TestTopicsFollowSelection(t *testing.T) {
	m, _ := newManager(t)

	if err := m.SetIndustry("engineering"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetRole("junior"); err != nil {
		t.Fatal(err)
	}
	if got := m.Topics(); len(got) != 2 || got[0] != "Version Control Basics" {
		t.Errorf("Topics() = %v", got)
	}

	// Switching role recomputes the list, no stale copy survives.
	if err := m.SetIndustry("healthcare"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetRole("it"); err != nil {
		t.Fatal(err)
	}
	if got := m.Topics(); len(got) != 1 || got[0] != "HIPAA Fundamentals" {
		t.Errorf("Topics() after switch = %v", got)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	m, _ := newManager(t)

	if err := m.CompleteOnboarding(); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	if !m.HasOnboarded() {
		t.Error("HasOnboarded() = false after completion")
	}
}

func TestUnreadableStateFallsBackToDefaults(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("disk gone")
	m := NewManager(store, &fakeTopics{})

	if got := m.Industry(); got != "" {
		t.Errorf("Industry() = %q, want empty on read failure", got)
	}
	if m.HasOnboarded() {
		t.Error("HasOnboarded() = true on read failure")
	}
}

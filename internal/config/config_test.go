package config

import (
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error {
	b.strings[key] = val
	return nil
}

func (b *memBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *memBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

// TestDefaults verifies the defaults survive an empty backend.
func TestDefaults(t *testing.T) {
	t.Setenv("LECTERN_SERVER_PORT", "")
	t.Setenv("LECTERN_TUTOR_BASE_URL", "")
	t.Setenv("LECTERN_TUTOR_REQUEST_TIMEOUT", "")
	t.Setenv("LECTERN_LOG_LEVEL", "")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Tutor.BaseURL != "http://localhost:8000" {
		t.Errorf("Tutor.BaseURL = %q", cfg.Tutor.BaseURL)
	}
	if cfg.Tutor.RequestTimeout != 3*time.Minute {
		t.Errorf("Tutor.RequestTimeout = %v, want 3m", cfg.Tutor.RequestTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

// TestBackendValues verifies backend values override defaults.
func TestBackendValues(t *testing.T) {
	t.Setenv("LECTERN_SERVER_PORT", "")
	t.Setenv("LECTERN_TUTOR_BASE_URL", "")
	t.Setenv("LECTERN_TUTOR_REQUEST_TIMEOUT", "")

	b := newMemBackend()
	b.SetInt("server.port", 4700)
	b.SetString("tutor.base_url", "http://tutor.internal:9000")
	b.SetString("tutor.request_timeout", "90s")
	b.SetString("playback.command", "ffplay")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4700 {
		t.Errorf("Server.Port = %d, want 4700", cfg.Server.Port)
	}
	if cfg.Tutor.BaseURL != "http://tutor.internal:9000" {
		t.Errorf("Tutor.BaseURL = %q", cfg.Tutor.BaseURL)
	}
	if cfg.Tutor.RequestTimeout != 90*time.Second {
		t.Errorf("Tutor.RequestTimeout = %v, want 90s", cfg.Tutor.RequestTimeout)
	}
	if cfg.Playback.Command != "ffplay" {
		t.Errorf("Playback.Command = %q", cfg.Playback.Command)
	}
}

// TestEnvOverride verifies environment variables beat backend values.
func TestEnvOverride(t *testing.T) {
	b := newMemBackend()
	b.SetInt("server.port", 4700)
	b.SetString("tutor.base_url", "http://backend-value:9000")

	t.Setenv("LECTERN_SERVER_PORT", "4800")
	t.Setenv("LECTERN_TUTOR_BASE_URL", "http://env-value:9000")
	t.Setenv("LECTERN_TUTOR_REQUEST_TIMEOUT", "")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4800 {
		t.Errorf("Server.Port = %d, want env override 4800", cfg.Server.Port)
	}
	if cfg.Tutor.BaseURL != "http://env-value:9000" {
		t.Errorf("Tutor.BaseURL = %q, want env override", cfg.Tutor.BaseURL)
	}
}

// TestMalformedValuesFallBack verifies unparseable values keep defaults
// instead of failing the load.
func TestMalformedValuesFallBack(t *testing.T) {
	b := newMemBackend()
	b.SetString("tutor.request_timeout", "not-a-duration")

	t.Setenv("LECTERN_SERVER_PORT", "not-a-number")
	t.Setenv("LECTERN_TUTOR_BASE_URL", "")
	t.Setenv("LECTERN_TUTOR_REQUEST_TIMEOUT", "")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want default 4600", cfg.Server.Port)
	}
	if cfg.Tutor.RequestTimeout != 3*time.Minute {
		t.Errorf("Tutor.RequestTimeout = %v, want default 3m", cfg.Tutor.RequestTimeout)
	}
}

func TestShowAllListsEveryKey(t *testing.T) {
	t.Setenv("LECTERN_SERVER_PORT", "")

	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	infos := ShowAll(cfg)
	if len(infos) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(ValidKeys()))
	}
	for _, info := range infos {
		if info.Key == "" || info.EnvVar == "" {
			t.Errorf("incomplete key info: %+v", info)
		}
	}
}

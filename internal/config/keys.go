package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "LECTERN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "tutor.base_url", typ: kString, env: "LECTERN_TUTOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Tutor.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Tutor.BaseURL },
	},
	{
		key: "tutor.request_timeout", typ: kDuration, env: "LECTERN_TUTOR_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Tutor.RequestTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Tutor.RequestTimeout.String() },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LECTERN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "playback.command", typ: kString, env: "LECTERN_PLAYBACK_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Playback.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Playback.Command },
	},
	{
		key: "log.level", typ: kString, env: "LECTERN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

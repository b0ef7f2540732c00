package config

import "time"

type Config struct {
	Server   ServerConfig
	Tutor    TutorConfig
	Storage  StorageConfig
	Playback PlaybackConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type TutorConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type PlaybackConfig struct {
	// Command is the audio player binary. Empty selects a platform
	// default at startup.
	Command string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Tutor: TutorConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 3 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and
// environment variables. Every key has a usable default; a missing or
// unreadable value never fails the load, only a backend that errors
// outright does.
//
// On macOS the backend is UserDefaults (domain: com.lectern.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/lectern/config.json.
//
// Environment variables (LECTERN_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

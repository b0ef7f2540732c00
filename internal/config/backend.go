package config

// ConfigBackend abstracts the platform's settings store. macOS reads
// and writes the app's UserDefaults domain through the `defaults` CLI;
// other platforms fall back to a JSON file under the XDG config dir.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

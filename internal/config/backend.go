package config

// ConfigBackend persists values written by `loratk config set`: the macOS
// defaults domain, or a JSON file on other platforms. Float and bool keys are
// stored through the string methods.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

package config

import "os"

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "UNIGEN_"

// Settings is a key-value source of overrides. Keys are upper-case and
// unprefixed, e.g. "PORT" or "OPENAI_API_KEY".
type Settings interface {
	Lookup(key string) (string, bool)
}

// Env reads settings from UNIGEN_ environment variables.
func Env() Settings { return envSettings{} }

type envSettings struct{}

func (envSettings) Lookup(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + key)
}

// Map is an in-memory Settings, typically for embedding hosts and tests.
type Map map[string]string

// Lookup implements Settings.
func (m Map) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

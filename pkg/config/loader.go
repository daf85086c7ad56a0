package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/unigen/pkg/debug"
	"github.com/rhuss/unigen/pkg/tools/mcp"
)

// Load loads configuration from the default sources: .env, the YAML file
// and UNIGEN_ environment variables.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return LoadWith(configPath, Env())
}

// LoadWith loads configuration with overrides taken from s.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CONFIG setting, ./config.yaml, /etc/unigen/config.yaml)
//  3. Settings overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func LoadWith(configPath string, s Settings) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath, s)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyOverrides(&cfg, s); err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv loads UNIGEN_ENV_FILE or ./.env when present. Variables
// already set in the environment are kept.
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CONFIG setting
// 3. ./config.yaml in the current directory
// 4. /etc/unigen/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string, s Settings) string {
	if configPath != "" {
		return configPath
	}
	if p, ok := s.Lookup("CONFIG"); ok && p != "" {
		return p
	}
	for _, path := range []string{"config.yaml", "/etc/unigen/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyOverrides maps settings onto config fields. Malformed numbers and
// durations are errors rather than silently ignored.
func applyOverrides(cfg *Config, s Settings) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := s.Lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := s.Lookup(key); ok && v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := s.Lookup(key); ok && v != "" && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s%s: %w", EnvPrefix, key, perr)
				return
			}
			*dst = d
		}
	}

	num("PORT", &cfg.Server.Port)
	num("MAX_TOOL_TURNS", &cfg.Engine.MaxToolTurns)
	num("RETRY_MAX_ATTEMPTS", &cfg.Engine.Retry.MaxAttempts)
	dur("CACHE_TTL", &cfg.Cache.TTL)
	dur("APPROVAL_TIMEOUT", &cfg.Approval.BaseTimeout)
	str("APPROVAL_RESPONDER", &cfg.Approval.Responder)
	str("STORAGE", &cfg.Storage.Type)
	num("STORAGE_SIZE", &cfg.Storage.MaxSize)
	str("POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	str("AUTH_TYPE", &cfg.Auth.Type)
	num("RATE_LIMIT_RPM", &cfg.Auth.RateLimit.RequestsPerMinute)
	if err != nil {
		return err
	}

	// UNIGEN_PROVIDERS, UNIGEN_API_KEYS and UNIGEN_MCP_SERVERS replace
	// the whole list with a JSON array.
	if v, ok := s.Lookup("PROVIDERS"); ok && v != "" {
		var providers []ProviderConfig
		if err := json.Unmarshal([]byte(v), &providers); err != nil {
			return fmt.Errorf("parsing %sPROVIDERS: %w", EnvPrefix, err)
		}
		cfg.Providers = providers
	}
	if v, ok := s.Lookup("API_KEYS"); ok && v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing %sAPI_KEYS: %w", EnvPrefix, err)
		}
		cfg.Auth.APIKeys = keys
	}
	if v, ok := s.Lookup("MCP_SERVERS"); ok && v != "" {
		var servers []mcpServerJSON
		if err := json.Unmarshal([]byte(v), &servers); err != nil {
			return fmt.Errorf("parsing %sMCP_SERVERS: %w", EnvPrefix, err)
		}
		cfg.MCP.Servers = cfg.MCP.Servers[:0]
		for _, srv := range servers {
			cfg.MCP.Servers = append(cfg.MCP.Servers, srv.serverConfig())
		}
	}

	// <NAME>_API_KEY fills the key of the provider instance with that
	// name, e.g. UNIGEN_OPENAI_API_KEY or UNIGEN_MY_OLLAMA_API_KEY.
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(p.InstanceName())) + "_API_KEY"
		str(key, &p.APIKey)
	}
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKeyFile != "" && p.APIKey == "" {
			val, err := readSecretFile(p.APIKeyFile)
			if err != nil {
				return fmt.Errorf("providers[%d].api_key_file: %w", i, err)
			}
			p.APIKey = val
		}
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	for i := range cfg.MCP.Servers {
		a := &cfg.MCP.Servers[i].Auth
		if a.ClientSecretFile != "" && a.ClientSecret == "" {
			val, err := readSecretFile(a.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			a.ClientSecret = val
		}
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// mcpServerJSON is the JSON shape of an MCP server in UNIGEN_MCP_SERVERS.
type mcpServerJSON struct {
	Name            string            `json:"name"`
	Transport       string            `json:"transport"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers"`
	RequireApproval bool              `json:"require_approval"`
}

func (j mcpServerJSON) serverConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:            j.Name,
		Transport:       j.Transport,
		URL:             j.URL,
		Headers:         j.Headers,
		RequireApproval: j.RequireApproval,
	}
}

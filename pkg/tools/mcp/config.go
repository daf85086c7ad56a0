package mcp

import (
	"errors"
	"fmt"
)

// Config lists the MCP servers to connect to.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and approval requests.
	Name string `yaml:"name"`

	// Transport is "streamable-http" (default) or "sse".
	Transport string `yaml:"transport"`

	URL string `yaml:"url"`

	// Headers are sent with every request, typically an API key.
	Headers map[string]string `yaml:"headers"`

	Auth AuthConfig `yaml:"auth"`

	// RequireApproval gates every tool of this server behind the
	// approval state machine.
	RequireApproval bool `yaml:"require_approval"`
}

// AuthConfig selects dynamic authentication for a server.
type AuthConfig struct {
	// Type is empty or "oauth_client_credentials".
	Type         string   `yaml:"type"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`

	// ClientSecretFile is read into ClientSecret when that is empty.
	ClientSecretFile string `yaml:"client_secret_file"`
}

// Validate checks every server entry.
func (c Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, s := range c.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch s.Transport {
		case "", "streamable-http", "sse":
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport: unsupported %q", i, s.Transport))
		}
		switch s.Auth.Type {
		case "":
		case "oauth_client_credentials":
			if s.Auth.TokenURL == "" || s.Auth.ClientID == "" {
				errs = append(errs, fmt.Errorf("mcp.servers[%d].auth: token_url and client_id are required", i))
			}
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].auth.type: unsupported %q", i, s.Auth.Type))
		}
	}
	return errors.Join(errs...)
}

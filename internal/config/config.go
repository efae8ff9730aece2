// Package config turns the environment, an optional .env file and the MCP
// server file into one immutable Settings value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mcpchat/internal/agenterr"

	"github.com/joho/godotenv"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultServerFile     = "mcp_config.json"
	DefaultTranscriptDir  = "conversations"
	DefaultToolTimeout    = 60 * time.Second
	DefaultTurnTimeout    = 5 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
)

// Server describes how to launch the single MCP tool provider.
type Server struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// EnvList renders Env as KEY=VALUE pairs, sorted for stable process setup.
func (s Server) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

type Settings struct {
	Provider Provider
	Model    string
	APIKey   string
	BaseURL  string

	Server Server

	TranscriptDir  string
	LogLevel       string
	Markdown       bool
	ToolTimeout    time.Duration
	TurnTimeout    time.Duration
	ConnectTimeout time.Duration
}

// serverFile mirrors the common mcpServers layout used by MCP hosts.
type serverFile struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// Load reads .env from the working directory when present and builds
// Settings from the process environment. Variables already set in the
// environment are never overridden by .env.
func Load() (Settings, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds Settings using getenv for every lookup.
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Settings{
		Provider:      Provider(strings.ToLower(valueOrDefault(getenv("MCPCHAT_PROVIDER"), string(ProviderOpenAI)))),
		Model:         valueOrDefault(getenv("MCPCHAT_MODEL"), DefaultModel),
		BaseURL:       strings.TrimSpace(getenv("MCPCHAT_BASE_URL")),
		TranscriptDir: valueOrDefault(getenv("MCPCHAT_TRANSCRIPT_DIR"), DefaultTranscriptDir),
		LogLevel:      valueOrDefault(getenv("MCPCHAT_LOG_LEVEL"), "info"),
	}

	switch s.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return Settings{}, agenterr.Configuration(fmt.Sprintf("unsupported provider %q", s.Provider), nil)
	}

	s.APIKey = strings.TrimSpace(getenv("MCPCHAT_API_KEY"))
	if s.APIKey == "" {
		switch s.Provider {
		case ProviderOpenAI:
			s.APIKey = strings.TrimSpace(getenv("OPENAI_API_KEY"))
		case ProviderAnthropic:
			s.APIKey = strings.TrimSpace(getenv("ANTHROPIC_API_KEY"))
		}
	}
	if s.APIKey == "" && s.Provider != ProviderOllama {
		return Settings{}, agenterr.Configuration("missing API key (set MCPCHAT_API_KEY)", nil)
	}

	var err error
	if s.Markdown, err = parseBool(getenv, "MCPCHAT_MARKDOWN", true); err != nil {
		return Settings{}, err
	}
	if s.ToolTimeout, err = parseDuration(getenv, "MCPCHAT_TOOL_TIMEOUT", DefaultToolTimeout); err != nil {
		return Settings{}, err
	}
	if s.TurnTimeout, err = parseDuration(getenv, "MCPCHAT_TURN_TIMEOUT", DefaultTurnTimeout); err != nil {
		return Settings{}, err
	}
	if s.ConnectTimeout, err = parseDuration(getenv, "MCPCHAT_CONNECT_TIMEOUT", DefaultConnectTimeout); err != nil {
		return Settings{}, err
	}

	path := valueOrDefault(getenv("MCPCHAT_MCP_CONFIG"), DefaultServerFile)
	s.Server, err = LoadServer(path, strings.TrimSpace(getenv("MCPCHAT_MCP_SERVER")))
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadServer reads the MCP server file at path and selects one server: the
// only entry, or the entry called name.
func LoadServer(path, name string) (Server, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return Server{}, agenterr.Configuration("resolve server config path", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Server{}, agenterr.Configuration(fmt.Sprintf("read server config %q", resolved), err)
	}
	var f serverFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Server{}, agenterr.Configuration(fmt.Sprintf("parse server config %q", resolved), err)
	}
	if len(f.MCPServers) == 0 {
		return Server{}, agenterr.Configuration(fmt.Sprintf("server config %q lists no mcpServers", resolved), nil)
	}

	if name == "" {
		if len(f.MCPServers) > 1 {
			return Server{}, agenterr.Configuration(
				fmt.Sprintf("server config %q lists %d servers; choose one with MCPCHAT_MCP_SERVER (%s)",
					resolved, len(f.MCPServers), strings.Join(serverNames(f.MCPServers), ", ")), nil)
		}
		for n := range f.MCPServers {
			name = n
		}
	}
	entry, ok := f.MCPServers[name]
	if !ok {
		return Server{}, agenterr.Configuration(fmt.Sprintf("server %q not found in %q", name, resolved), nil)
	}
	if strings.TrimSpace(entry.Command) == "" {
		return Server{}, agenterr.Configuration(fmt.Sprintf("server %q has an empty command", name), nil)
	}
	return Server{
		Name:    name,
		Command: strings.TrimSpace(entry.Command),
		Args:    entry.Args,
		Env:     entry.Env,
	}, nil
}

func serverNames(m map[string]serverEntry) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

func parseDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, agenterr.Configuration(fmt.Sprintf("%s: invalid duration %q", key, raw), err)
	}
	return d, nil
}

func parseBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, agenterr.Configuration(fmt.Sprintf("%s: invalid boolean %q", key, raw), err)
	}
	return b, nil
}

func valueOrDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

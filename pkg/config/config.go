// Package config loads and validates the JSON document describing
// connected MCP servers and the model provider backing a chat
// session.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/digitallysavvy/mcphost/pkg/mcp"
)

// defaultConfig is written to disk the first time a configured path
// does not exist, mirroring the original host's bootstrap behavior.
const defaultConfig = `{
  "mcpServers": {},
  "llmProvider": {
    "type": "anthropic",
    "model": "claude-3-5-sonnet-20240620"
  }
}
`

// ServerEntry is the on-disk shape of one mcpServers value.
type ServerEntry struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// LLMProvider is the on-disk shape of the llmProvider value.
type LLMProvider struct {
	Type       string                 `json:"type"`
	Model      string                 `json:"model"`
	URL        string                 `json:"url,omitempty"`
	APIKey     string                 `json:"api_key,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// File is the top-level config document: {mcpServers, llmProvider}.
type File struct {
	MCPServers  map[string]ServerEntry `json:"mcpServers"`
	LLMProvider LLMProvider            `json:"llmProvider"`
}

// Logger is satisfied by *log.Logger and by mcp.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Load reads the config file at path, bootstrapping it with
// defaultConfig if it does not exist yet (the original host's
// behavior, and invalid entries are skipped rather than aborting the
// whole load).
func Load(path string, logger Logger) (*File, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("config: creating directory for default config: %w", mkErr)
		}
		if writeErr := os.WriteFile(path, []byte(defaultConfig), 0o644); writeErr != nil {
			return nil, fmt.Errorf("config: writing default config: %w", writeErr)
		}
		logger.Printf("config: no config found at %s, wrote defaults", path)
		data = []byte(defaultConfig)
	} else if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if f.MCPServers == nil {
		f.MCPServers = make(map[string]ServerEntry)
	}
	return &f, nil
}

// ServerSpecs validates each mcpServers entry and converts it to an
// mcp.ServerSpec, logging and skipping (rather than failing) any
// entry that fails validation: invalid entries are reported and
// skipped, not fatal to the whole load.
func (f *File) ServerSpecs(logger Logger) []mcp.ServerSpec {
	if logger == nil {
		logger = noopLogger{}
	}

	names := make([]string, 0, len(f.MCPServers))
	for name := range f.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]mcp.ServerSpec, 0, len(names))
	for _, name := range names {
		entry := f.MCPServers[name]
		spec, err := entry.toServerSpec(name)
		if err != nil {
			logger.Printf("config: skipping server %q: %v", name, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

func (e ServerEntry) toServerSpec(name string) (mcp.ServerSpec, error) {
	switch e.Type {
	case "stdio", "":
		if e.Command == "" {
			return mcp.ServerSpec{}, fmt.Errorf("stdio transport requires command")
		}
		return mcp.ServerSpec{
			Name:    name,
			Kind:    mcp.TransportStdio,
			Command: e.Command,
			Args:    e.Args,
			Env:     flattenEnv(e.Env),
		}, nil
	case "sse":
		if !strings.HasPrefix(e.URL, "http://") && !strings.HasPrefix(e.URL, "https://") {
			return mcp.ServerSpec{}, fmt.Errorf("sse transport requires a http(s) url, got %q", e.URL)
		}
		return mcp.ServerSpec{
			Name: name,
			Kind: mcp.TransportSSE,
			URL:  e.URL,
		}, nil
	default:
		return mcp.ServerSpec{}, fmt.Errorf("unknown transport type %q", e.Type)
	}
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

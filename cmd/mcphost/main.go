// Command mcphost wires a config file, a set of MCP servers, and a
// model provider together into a single one-shot prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digitallysavvy/mcphost/pkg/chat"
	"github.com/digitallysavvy/mcphost/pkg/config"
	"github.com/digitallysavvy/mcphost/pkg/llm"
	"github.com/digitallysavvy/mcphost/pkg/mcp"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to mcphost config.json")
	prompt := flag.String("prompt", "", "prompt to send (required)")
	flag.Parse()

	if *prompt == "" {
		log.Fatal("mcphost: -prompt is required")
	}

	logger := log.New(os.Stderr, "mcphost: ", log.LstdFlags)

	if err := run(*configPath, *prompt, logger); err != nil {
		log.Fatalf("mcphost: %v", err)
	}
}

func run(configPath, prompt string, logger *log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	specs := cfg.ServerSpecs(logger)
	if len(specs) == 0 {
		return fmt.Errorf("no MCP servers configured")
	}

	manager := mcp.NewClientManager(logger)
	manager.InitializeAll(ctx, specs)
	defer manager.ShutdownAll(context.Background())

	if manager.ClientCount() == 0 {
		return fmt.Errorf("failed to initialize any MCP clients")
	}

	provider, err := buildProvider(cfg.LLMProvider)
	if err != nil {
		return fmt.Errorf("building model provider: %w", err)
	}

	session := chat.NewChatSession(provider, manager, chat.DefaultWindow, logger)

	reply, err := session.ProcessPrompt(ctx, prompt)
	if err != nil {
		return fmt.Errorf("processing prompt: %w", err)
	}

	fmt.Println(reply)
	return nil
}

func buildProvider(cfg config.LLMProvider) (chat.ModelProvider, error) {
	switch strings.ToLower(cfg.Type) {
	case "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:  resolveAPIKey(cfg.APIKey),
			Model:   cfg.Model,
			BaseURL: cfg.URL,
		}), nil
	case "ollama":
		return llm.NewOllamaProvider(llm.OllamaConfig{
			Model:   cfg.Model,
			BaseURL: cfg.URL,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llmProvider.type %q", cfg.Type)
	}
}

func resolveAPIKey(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configDir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(configDir, "mcphost", "config.json")
}

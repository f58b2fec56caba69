package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/promptstream/internal/controller"
	"github.com/MegaGrindStone/promptstream/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	modelName() string
	// apiKey returns the configured key, falling back to the environment, and the name of the environment
	// variable operators are told to set.
	apiKey() (key string, env string)
	keyOptional() bool
	generator(logger *slog.Logger) controller.GeneratorFunc
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

type config struct {
	Port       string        `yaml:"port"`
	Locale     string        `yaml:"locale"`
	LogLevel   string        `yaml:"logLevel"`
	SessionTTL time.Duration `yaml:"sessionTTL"`
	// GuidanceStyle is the chroma style used to highlight code in the configuration error explanation.
	GuidanceStyle string    `yaml:"guidanceStyle"`
	LLM           llmConfig `yaml:"llm"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	BaseURL       string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	BaseURL       string                 `yaml:"baseURL"`
	Parameters    services.LLMParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Endpoint      string `yaml:"endpoint"`
}

const (
	defaultPort = "8080"
)

func defaultConfig() config {
	return config{
		Port:   defaultPort,
		Locale: "en",
		LLM: &geminiConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "gemini", Model: controller.DefaultModel},
		},
	}
}

// loadConfig reads the YAML configuration at path. A missing file yields the default configuration.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string         `yaml:"port"`
		Locale        string         `yaml:"locale"`
		LogLevel      string         `yaml:"logLevel"`
		SessionTTL    time.Duration  `yaml:"sessionTTL"`
		GuidanceStyle string         `yaml:"guidanceStyle"`
		LLM           map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.Locale != "" {
		c.Locale = rawConfig.Locale
	}
	c.LogLevel = rawConfig.LogLevel
	c.SessionTTL = rawConfig.SessionTTL
	c.GuidanceStyle = rawConfig.GuidanceStyle

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}
	if llm.modelName() == "" {
		return fmt.Errorf("llm model is required for provider %s", llmProvider)
	}

	c.LLM = llm

	return nil
}

// envKey returns the configured key, else the first non-empty of the given environment variables. The
// first variable is the one reported to operators.
func envKey(configured string, envs ...string) (string, string) {
	if configured != "" {
		return configured, envs[0]
	}
	for _, env := range envs {
		if v := os.Getenv(env); v != "" {
			return v, envs[0]
		}
	}
	return "", envs[0]
}

func (b BaseLLMConfig) modelName() string { return b.Model }

func (b BaseLLMConfig) keyOptional() bool { return false }

func (g geminiConfig) apiKey() (string, string) {
	return envKey(g.APIKey, "API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
}

func (g geminiConfig) generator(logger *slog.Logger) controller.GeneratorFunc {
	return func(apiKey string) (controller.Generator, error) {
		return services.NewGemini(context.Background(), apiKey, g.BaseURL, logger)
	}
}

func (o ollamaConfig) apiKey() (string, string) { return "", "OLLAMA_HOST" }

func (o ollamaConfig) keyOptional() bool { return true }

func (o ollamaConfig) generator(*slog.Logger) controller.GeneratorFunc {
	return func(string) (controller.Generator, error) {
		return services.NewOllama(o.Host)
	}
}

func (o openAIConfig) apiKey() (string, string) {
	return envKey(o.APIKey, "OPENAI_API_KEY")
}

func (o openAIConfig) generator(logger *slog.Logger) controller.GeneratorFunc {
	return func(apiKey string) (controller.Generator, error) {
		return services.NewOpenAI(apiKey, o.BaseURL, o.Parameters, logger), nil
	}
}

func (a anthropicConfig) apiKey() (string, string) {
	return envKey(a.APIKey, "ANTHROPIC_API_KEY")
}

func (a anthropicConfig) generator(*slog.Logger) controller.GeneratorFunc {
	return func(apiKey string) (controller.Generator, error) {
		return services.NewAnthropic(apiKey, a.Endpoint, a.MaxTokens), nil
	}
}

func (o openRouterConfig) apiKey() (string, string) {
	return envKey(o.APIKey, "OPENROUTER_API_KEY")
}

func (o openRouterConfig) generator(logger *slog.Logger) controller.GeneratorFunc {
	return func(apiKey string) (controller.Generator, error) {
		return services.NewOpenRouter(apiKey, o.Endpoint, logger), nil
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

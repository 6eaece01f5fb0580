package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is looked up in the working directory when --config
// names no file.
const defaultConfigFile = "foreman.yaml"

// Config is the CLI configuration. Values resolve in precedence order:
// flags over FOREMAN_* environment variables over the YAML file over
// defaults. The library packages never read any of this themselves; the
// CLI translates it into their config structs.
type Config struct {
	Provider      string            `yaml:"provider"`
	Model         string            `yaml:"model"`
	MaxIterations int               `yaml:"max_iterations"`
	MaxDepth      int               `yaml:"max_depth"`
	Temperature   *float64          `yaml:"temperature"`
	MaxTokens     *int              `yaml:"max_tokens"`
	WorkDir       string            `yaml:"workdir"`
	APIKeys       map[string]string `yaml:"api_keys"`

	Shell ShellSettings `yaml:"shell"`
	Log   LogSettings   `yaml:"log"`
}

// ShellSettings configures the shell supervisor.
type ShellSettings struct {
	DefaultTimeoutMs int    `yaml:"default_timeout_ms"`
	MaxTimeoutMs     int    `yaml:"max_timeout_ms"`
	Shell            string `yaml:"shell"`
}

// LogSettings configures the console logger.
type LogSettings struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      "anthropic",
		MaxIterations: 50,
		MaxDepth:      3,
		Shell: ShellSettings{
			DefaultTimeoutMs: 10000,
			MaxTimeoutMs:     600000,
			Shell:            "/bin/sh",
		},
		Log: LogSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig resolves the effective configuration: .env first so the
// environment is complete, then defaults, the YAML file, and FOREMAN_*
// overrides. Flag overrides are applied afterwards by the command.
func LoadConfig(configPath, envFile string) (Config, error) {
	loadDotenv(envFile)

	cfg := DefaultConfig()
	if err := cfg.applyFile(configPath); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadDotenv loads the .env file best-effort. A missing default .env is
// fine; a missing explicitly named file is reported.
func loadDotenv(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile, err)
		}
		return
	}
	_ = godotenv.Load()
}

// applyFile merges the YAML file at path, or the default foreman.yaml when
// path is empty. Only an explicitly named file must exist.
func (c *Config) applyFile(path string) error {
	required := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnv merges FOREMAN_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("FOREMAN_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("FOREMAN_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("FOREMAN_WORKDIR"); v != "" {
		c.WorkDir = v
	}
	if v := os.Getenv("FOREMAN_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("FOREMAN_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDepth = n
		}
	}
	if v := os.Getenv("FOREMAN_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = &f
		}
	}
	if v := os.Getenv("FOREMAN_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = &n
		}
	}
	if v := os.Getenv("FOREMAN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FOREMAN_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("FOREMAN_SHELL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Shell.DefaultTimeoutMs = n
		}
	}
}

// apiKey returns the configured key for a provider, falling back to the
// provider's conventional environment variable. An empty result is fine:
// the LLM layer reads the environment on its own as a last resort.
func (c *Config) apiKey(provider string) string {
	if key, ok := c.APIKeys[provider]; ok && key != "" {
		return key
	}
	switch strings.ToLower(provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// Package config handles AgriGuardian configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable holding the OpenRouter credential.
// A .env file in the working directory is consulted via LoadDotenv before
// the environment is read.
const EnvAPIKey = "OPENROUTER_API_KEY"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/agriguardian/config.yaml,
// /etc/agriguardian/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agriguardian", "config.yaml"))
	}

	paths = append(paths, "/etc/agriguardian/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all AgriGuardian configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	SMS        SMSConfig        `yaml:"sms"`
	Store      StoreConfig      `yaml:"store"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenRouterConfig defines the chat-completion endpoint settings.
type OpenRouterConfig struct {
	// APIKey is the bearer credential. Usually left empty here and
	// supplied via OPENROUTER_API_KEY (environment or .env file).
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Default: https://openrouter.ai/api/v1
	Model   string `yaml:"model"`    // Default: deepseek/deepseek-r1-0528:free
	// Referer and Title are the optional descriptive headers OpenRouter
	// uses for app attribution (HTTP-Referer, X-Title).
	Referer string `yaml:"referer"`
	Title   string `yaml:"title"`
	// DailyLimit caps the number of model calls per process run.
	DailyLimit int `yaml:"daily_limit"`
}

// SMSConfig defines the optional SMS gateway bridge.
type SMSConfig struct {
	Enabled bool `yaml:"enabled"`
	// ProviderURL is the outbound send endpoint of the SMS provider.
	ProviderURL string `yaml:"provider_url"`
	// Token authenticates outbound sends to the provider.
	Token string `yaml:"token"`
	// SenderID is the alphanumeric origin shown to recipients.
	SenderID string `yaml:"sender_id"`
	// RateLimit is inbound messages per sender per minute; 0 = unlimited.
	RateLimit int `yaml:"rate_limit"`
}

// StoreConfig defines the farmer context store.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables the store;
	// SMS and API requests then run without farmer personalization.
	Path string `yaml:"path"`
}

// ResolveAPIKey returns the configured credential, falling back to the
// environment. An empty result means no credential is available.
func (c OpenRouterConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(EnvAPIKey)
}

// LoadDotenv loads a .env file from the working directory if present.
// Missing files are not an error; the environment simply stays as-is.
func LoadDotenv() {
	_ = godotenv.Load()
}

// SaveAPIKeyDotenv writes the credential to a .env file so interactive
// console users only have to enter it once.
func SaveAPIKeyDotenv(key string) error {
	return os.WriteFile(".env", []byte(fmt.Sprintf("%s=%s\n", EnvAPIKey, key)), 0o600)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		OpenRouter: OpenRouterConfig{
			BaseURL:    "https://openrouter.ai/api/v1",
			Model:      "deepseek/deepseek-r1-0528:free",
			Referer:    "https://agriguardian-app.com",
			Title:      "AgriGuardian",
			DailyLimit: 50,
		},
		SMS: SMSConfig{
			SenderID:  "AgrGuard",
			RateLimit: 5,
		},
		Store: StoreConfig{Path: "agriguardian.db"},
	}
}

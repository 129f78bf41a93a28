// Package config loads and persists the application configuration.
// Precedence: environment variables > config file > defaults.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Version  string         `mapstructure:"version" yaml:"version"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Ollama   OllamaConfig   `mapstructure:"ollama" yaml:"ollama"`
	OpenAI   OpenAIConfig   `mapstructure:"openai" yaml:"openai"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Context  ContextConfig  `mapstructure:"context" yaml:"context"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	Records  RecordsConfig  `mapstructure:"records" yaml:"records"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`

	// Models overrides the built-in model capability table. Keys are
	// model name prefixes.
	Models map[string]ModelConfig `mapstructure:"models" yaml:"models,omitempty"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// ProviderConfig selects the oracle backend and model.
type ProviderConfig struct {
	Backend     string  `mapstructure:"backend" yaml:"backend"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// AgentConfig holds the orchestration safety bounds.
type AgentConfig struct {
	MaxSteps             int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxStepsPerTask      int           `mapstructure:"max_steps_per_task" yaml:"max_steps_per_task"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	TaskTimeout          time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	DiscoveryLimit       int           `mapstructure:"discovery_limit" yaml:"discovery_limit"`
	MaxActionsPerCall    int           `mapstructure:"max_actions_per_call" yaml:"max_actions_per_call"`
}

// ContextConfig bounds the working context.
type ContextConfig struct {
	MaxTokens    int `mapstructure:"max_tokens" yaml:"max_tokens"`
	OutputTokens int `mapstructure:"output_tokens" yaml:"output_tokens"`
}

// SandboxConfig configures the code executor.
type SandboxConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RecordsConfig points at the patient record directory.
type RecordsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// AnalysisConfig configures the optional document analysis service.
// An empty endpoint disables the analyze_document tool's remote path.
type AnalysisConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// StorageConfig configures the audit database. An empty path disables it.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// ModelConfig overrides one model's capability entry.
type ModelConfig struct {
	Tools        string `mapstructure:"tools" yaml:"tools"`
	OptimizeArgs bool   `mapstructure:"optimize_args" yaml:"optimize_args"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration from the given path. A missing file is not an
// error; a file that fails to parse is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("MEDRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the loaded configuration, or nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns an arbitrary configuration value by key.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string configuration value.
func GetString(key string) string {
	return viper.GetString(key)
}

// Set sets a configuration value and persists it when a config file path
// is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save persists the current configuration.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may carry an API key.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes a configuration to an explicit path.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Reset clears loaded state. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

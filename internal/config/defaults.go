package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default value for every configuration key.
func SetDefaults() {
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8080)

	viper.SetDefault("provider.backend", "ollama")
	viper.SetDefault("provider.model", "gpt-oss:20b")
	viper.SetDefault("provider.temperature", 0.1)

	viper.SetDefault("ollama.endpoint", "http://localhost:11434")
	viper.SetDefault("ollama.timeout", 120*time.Second)

	viper.SetDefault("agent.max_steps", 24)
	viper.SetDefault("agent.max_steps_per_task", 8)
	viper.SetDefault("agent.max_consecutive_errors", 3)
	viper.SetDefault("agent.task_timeout", 5*time.Minute)
	viper.SetDefault("agent.discovery_limit", 1)
	viper.SetDefault("agent.max_actions_per_call", 3)

	viper.SetDefault("context.max_tokens", 24000)
	viper.SetDefault("context.output_tokens", 2000)

	viper.SetDefault("sandbox.timeout", 30*time.Second)

	viper.SetDefault("records.dir", "./records")

	viper.SetDefault("analysis.endpoint", "")
	viper.SetDefault("analysis.timeout", 60*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	viper.SetDefault("storage.path", "")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Generation Generation `mapstructure:"generation"`
	Failure    Failure    `mapstructure:"failure"`
	Linking    Linking    `mapstructure:"linking"`
	Output     Output     `mapstructure:"output"`
	Publish    Publish    `mapstructure:"publish"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds AI backend configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIConfig holds OpenAI image configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
	Size    string `mapstructure:"size"`
}

// Generation holds pipeline sizing and backend selection
type Generation struct {
	Backend              string `mapstructure:"backend"`
	ImageBackend         string `mapstructure:"image_backend"`
	MaxPosts             int    `mapstructure:"max_posts"`
	BatchSize            int    `mapstructure:"batch_size"`
	Concurrency          int    `mapstructure:"concurrency"`
	Parts                int    `mapstructure:"parts"`
	ContextWindow        int    `mapstructure:"context_window"`
	CallTimeout          string `mapstructure:"call_timeout"`
	Clusters             int    `mapstructure:"clusters"`
	KeywordsPerCluster   int    `mapstructure:"keywords_per_cluster"`
	PlaceholderImageSize int    `mapstructure:"placeholder_image_size"`
}

// Failure holds the per-capability failure policy
type Failure struct {
	Metadata string `mapstructure:"metadata"`
	Outline  string `mapstructure:"outline"`
	Content  string `mapstructure:"content"`
	Image    string `mapstructure:"image"`
}

// Linking holds link graph configuration
type Linking struct {
	Policy         string `mapstructure:"policy"`
	Seed           int64  `mapstructure:"seed"`
	AlwaysEndBlock bool   `mapstructure:"always_end_block"`
}

// Output holds output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
}

// Publish holds publishing configuration
type Publish struct {
	Provider string `mapstructure:"provider"`
	Remote   string `mapstructure:"remote"`
	Branch   string `mapstructure:"branch"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".postforge")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset drops the cached configuration and viper state. Used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".postforge")

	viper.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.7)
	viper.SetDefault("ai.openai.model", "gpt-image-1")
	viper.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.openai.timeout", "60s")
	viper.SetDefault("ai.openai.size", "1536x1024")

	viper.SetDefault("generation.backend", "gemini")
	viper.SetDefault("generation.image_backend", "placeholder")
	viper.SetDefault("generation.max_posts", 1000)
	viper.SetDefault("generation.batch_size", 20)
	viper.SetDefault("generation.concurrency", 4)
	viper.SetDefault("generation.parts", 3)
	viper.SetDefault("generation.context_window", 6000)
	viper.SetDefault("generation.call_timeout", "2m")
	viper.SetDefault("generation.clusters", 10)
	viper.SetDefault("generation.keywords_per_cluster", 10)
	viper.SetDefault("generation.placeholder_image_size", 64)

	viper.SetDefault("failure.metadata", "abort")
	viper.SetDefault("failure.outline", "abort")
	viper.SetDefault("failure.content", "abort")
	viper.SetDefault("failure.image", "fallback")

	viper.SetDefault("linking.policy", "similarity")
	viper.SetDefault("linking.seed", 1)
	viper.SetDefault("linking.always_end_block", false)

	viper.SetDefault("output.directory", "sites")

	viper.SetDefault("publish.provider", "none")
	viper.SetDefault("publish.branch", "main")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("ai.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys("generation.backend", []string{
		"POSTFORGE_BACKEND",
	})

	bindEnvKeys("publish.remote", []string{
		"POSTFORGE_PUBLISH_REMOTE",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"POSTFORGE_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"ai.gemini.timeout":       config.AI.Gemini.Timeout,
		"ai.openai.timeout":       config.AI.OpenAI.Timeout,
		"generation.call_timeout": config.Generation.CallTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// Validate checks the configuration for a generation run. It is separate from
// Load so commands that never call a backend (link, audit) do not need credentials.
func Validate(config *Config) error {
	var errors []string

	switch config.Generation.Backend {
	case "gemini":
		if config.AI.Gemini.APIKey == "" {
			errors = append(errors, "Gemini API key is required for the gemini backend. Set GEMINI_API_KEY or ai.gemini.api_key")
		}
	case "placeholder":
	default:
		errors = append(errors, fmt.Sprintf("Unknown generation backend: %s. Supported: gemini, placeholder", config.Generation.Backend))
	}

	switch config.Generation.ImageBackend {
	case "openai":
		if config.AI.OpenAI.APIKey == "" {
			errors = append(errors, "OpenAI API key is required for the openai image backend. Set OPENAI_API_KEY")
		}
	case "placeholder":
	default:
		errors = append(errors, fmt.Sprintf("Unknown image backend: %s. Supported: openai, placeholder", config.Generation.ImageBackend))
	}

	if config.Generation.Concurrency < 1 {
		errors = append(errors, "generation.concurrency must be at least 1")
	}
	if config.Generation.Parts < 1 {
		errors = append(errors, "generation.parts must be at least 1")
	}
	if config.Generation.ContextWindow < 1 {
		errors = append(errors, "generation.context_window must be at least 1")
	}

	policies := map[string][]string{
		"failure.metadata": {config.Failure.Metadata, "abort", "skip"},
		"failure.outline":  {config.Failure.Outline, "abort", "skip"},
		"failure.content":  {config.Failure.Content, "abort", "skip"},
		"failure.image":    {config.Failure.Image, "fallback", "abort", "skip"},
	}
	for _, key := range []string{"failure.metadata", "failure.outline", "failure.content", "failure.image"} {
		values := policies[key]
		if !contains(values[1:], values[0]) {
			errors = append(errors, fmt.Sprintf("Unknown %s policy: %s. Supported: %s", key, values[0], strings.Join(values[1:], ", ")))
		}
	}

	switch config.Linking.Policy {
	case "similarity", "random":
	default:
		errors = append(errors, fmt.Sprintf("Unknown linking policy: %s. Supported: similarity, random", config.Linking.Policy))
	}

	switch config.Publish.Provider {
	case "none", "":
	case "git":
		if config.Publish.Remote == "" {
			errors = append(errors, "publish.remote is required for the git publisher")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown publish provider: %s. Supported: none, git", config.Publish.Provider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// CallTimeout returns the parsed per-call timeout, zero when unset.
func (c *Config) CallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Generation.CallTimeout)
	return d
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// expandPath expands ~ to home directory and makes path absolute
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bot's configuration model: platform credentials,
// generation backend credentials, and storage.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Storage     StorageConfig     `yaml:"storage"`
	Bot         BotConfig         `yaml:"bot"`
}

type CredentialsConfig struct {
	// OAuth 1.0a user context for the X API. All four are required.
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
}

type ProvidersConfig struct {
	// OpenAI key is required; the others enable their backends when set.
	OpenAIAPIKey    string `yaml:"openaiApiKey"`
	GeminiAPIKey    string `yaml:"geminiApiKey"`
	CohereAPIKey    string `yaml:"cohereApiKey"`
	StabilityAPIKey string `yaml:"stabilityApiKey"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type BotConfig struct {
	PollInterval  time.Duration `yaml:"pollInterval"`
	BatchSize     int           `yaml:"batchSize"`
	RateLimitWait time.Duration `yaml:"rateLimitWait"`
	MetricsAddr   string        `yaml:"metricsAddr"`
}

// Default returns the bot's fixed operating constants.
func Default() Config {
	return Config{
		Storage: StorageConfig{DBPath: "./memebot.db"},
		Bot: BotConfig{
			PollInterval:  time.Hour,
			BatchSize:     5,
			RateLimitWait: 15 * time.Minute,
		},
	}
}

// ResolveEnv fills in credentials from environment variables when the
// file left them empty.
func (c *Config) ResolveEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.Credentials.ConsumerKey, "TWITTER_APP_KEY")
	fill(&c.Credentials.ConsumerSecret, "TWITTER_APP_SECRET")
	fill(&c.Credentials.AccessToken, "TWITTER_ACCESS_TOKEN")
	fill(&c.Credentials.AccessSecret, "TWITTER_ACCESS_SECRET")
	fill(&c.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	fill(&c.Providers.GeminiAPIKey, "GEMINI_API_KEY")
	fill(&c.Providers.CohereAPIKey, "COHERE_API_KEY")
	fill(&c.Providers.StabilityAPIKey, "STABILITY_API_KEY")
	fill(&c.Storage.DBPath, "MEMEBOT_DB_PATH")
	fill(&c.Bot.MetricsAddr, "METRICS_ADDR")
}

// Validate reports every missing required credential. The process
// must not start when this fails.
func (c *Config) Validate() error {
	var missing []string
	req := []struct{ v, name string }{
		{c.Credentials.ConsumerKey, "TWITTER_APP_KEY"},
		{c.Credentials.ConsumerSecret, "TWITTER_APP_SECRET"},
		{c.Credentials.AccessToken, "TWITTER_ACCESS_TOKEN"},
		{c.Credentials.AccessSecret, "TWITTER_ACCESS_SECRET"},
		{c.Providers.OpenAIAPIKey, "OPENAI_API_KEY"},
	}
	for _, r := range req {
		if r.v == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load reads YAML config from path and resolves env fallbacks. A
// missing file is not an error: everything can come from env.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}
	cfg.ResolveEnv()
	if cfg.Bot.PollInterval <= 0 {
		cfg.Bot.PollInterval = time.Hour
	}
	if cfg.Bot.BatchSize <= 0 {
		cfg.Bot.BatchSize = 5
	}
	if cfg.Bot.RateLimitWait <= 0 {
		cfg.Bot.RateLimitWait = 15 * time.Minute
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

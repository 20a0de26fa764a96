package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Model      Model      `yaml:"model"`
	Bluesky    Bluesky    `yaml:"bluesky"`
	Reddit     Reddit     `yaml:"reddit"`
	Collection Collection `yaml:"collection"`
	Storage    Storage    `yaml:"storage"`
	Session    Session    `yaml:"session"`
	Server     Server     `yaml:"server"`
	Telegram   Telegram   `yaml:"telegram"`
	Logging    Logging    `yaml:"logging"`
}

type Model struct {
	Provider        string  `yaml:"provider" validate:"oneof=gemini ollama openai"`
	Model           string  `yaml:"model" validate:"required"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	Temperature     float64 `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxTokens       int     `yaml:"max_tokens" validate:"gt=0"`
	OllamaURL       string  `yaml:"ollama_url"`
	OpenAIModel     string  `yaml:"openai_model"`
	OpenAIAPIKeyEnv string  `yaml:"openai_api_key_env"`
}

type Bluesky struct {
	Host              string  `yaml:"host" validate:"required,url"`
	UsernameEnv       string  `yaml:"username_env"`
	PasswordEnv       string  `yaml:"password_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

type Reddit struct {
	ClientIDEnv       string  `yaml:"client_id_env"`
	ClientSecretEnv   string  `yaml:"client_secret_env"`
	UserAgent         string  `yaml:"user_agent" validate:"required"`
	FeedBaseURL       string  `yaml:"feed_base_url" validate:"required,url"`
	CommunityLimit    int     `yaml:"community_limit" validate:"gt=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

// Collection bounds the seed corpus fed to the language model.
type Collection struct {
	InterestSeeds     int  `yaml:"interest_seeds" validate:"gt=0"`
	InterestPosts     int  `yaml:"interest_posts" validate:"gt=0"`
	CandidateSeeds    int  `yaml:"candidate_seeds" validate:"gt=0"`
	FollowersPerSeed  int  `yaml:"followers_per_seed" validate:"gt=0"`
	PostsPerCandidate int  `yaml:"posts_per_candidate" validate:"gt=0"`
	ExpandLinks       bool `yaml:"expand_links"`
}

type Storage struct {
	DataDir        string `yaml:"data_dir"`
	DatabaseURLEnv string `yaml:"database_url_env"`
}

type Session struct {
	Backend     string        `yaml:"backend" validate:"oneof=memory redis"`
	MaxSessions int           `yaml:"max_sessions" validate:"gt=0"`
	RedisURLEnv string        `yaml:"redis_url_env"`
	TTL         time.Duration `yaml:"ttl"`
}

type Server struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

type Telegram struct {
	TokenEnv  string `yaml:"token_env"`
	ChatIDEnv string `yaml:"chat_id_env"`
}

type Logging struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// ConfigDir returns the XDG config directory for friendscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "friendscout")
}

// DataDir returns the XDG data directory for friendscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "friendscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/friendscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'friendscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Model: Model{
			Provider:        "gemini",
			Model:           "gemini-2.0-flash",
			APIKeyEnv:       "GEMINI_API_KEY",
			Temperature:     0.7,
			MaxTokens:       1024,
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
		},
		Bluesky: Bluesky{
			Host:              "https://bsky.social",
			UsernameEnv:       "BLUESKY_USERNAME",
			PasswordEnv:       "BLUESKY_PASSWORD",
			RequestsPerSecond: 5,
		},
		Reddit: Reddit{
			ClientIDEnv:       "REDDIT_CLIENT_ID",
			ClientSecretEnv:   "REDDIT_CLIENT_SECRET",
			UserAgent:         "go:friendscout:v1.0",
			FeedBaseURL:       "https://www.reddit.com",
			CommunityLimit:    100,
			RequestsPerSecond: 1,
		},
		Collection: Collection{
			InterestSeeds:     5,
			InterestPosts:     5,
			CandidateSeeds:    3,
			FollowersPerSeed:  10,
			PostsPerCandidate: 3,
		},
		Storage: Storage{DatabaseURLEnv: "DATABASE_URL"},
		Session: Session{
			Backend:     "memory",
			MaxSessions: 1024,
			RedisURLEnv: "REDIS_URL",
			TTL:         24 * time.Hour,
		},
		Server: Server{Port: 8501},
		Telegram: Telegram{
			TokenEnv:  "TELEGRAM_BOT_TOKEN",
			ChatIDEnv: "TELEGRAM_CHAT_ID",
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// Env returns the value of the environment variable named name, or "" when name is empty.
func Env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

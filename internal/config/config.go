package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"5000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// StoreConfig contains the document store connection settings. Token,
// repository and branch are opaque to the verification logic; they are
// consumed only by the store client constructor.
type StoreConfig struct {
	Token              string        `yaml:"token" envconfig:"TOKEN"`
	EncryptedTokenFile string        `yaml:"encrypted_token_file" envconfig:"ENCRYPTED_TOKEN_FILE"`
	Repository         string        `yaml:"repository" envconfig:"REPOSITORY"`
	Branch             string        `yaml:"branch" envconfig:"BRANCH" default:"main"`
	KeysDocument       string        `yaml:"keys_document" envconfig:"KEYS_DOCUMENT" default:"verification_keys.json"`
	UsersDocument      string        `yaml:"users_document" envconfig:"USERS_DOCUMENT" default:"users.json"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s"`
	APIBaseURL         string        `yaml:"api_base_url" envconfig:"API_BASE_URL"`
	PurchaseURL        string        `yaml:"purchase_url" envconfig:"PURCHASE_URL" default:"https://www.itemsatis.com/p/PremiumSt0re"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"25"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// Load loads configuration from environment variables and an optional
// config file. File values fill in only what the environment left unset.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("LGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// The deployment environment historically configures the store through
	// bare variable names; honor them when the prefixed form is absent.
	applyLegacyEnv(&cfg)

	// Load from config file if exists
	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyLegacyEnv maps the original deployment's environment names onto the
// config struct: GITHUB_TOKEN, GITHUB_REPO, GITHUB_BRANCH and PORT.
func applyLegacyEnv(cfg *Config) {
	if cfg.Store.Token == "" {
		cfg.Store.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Store.Repository == "" {
		cfg.Store.Repository = os.Getenv("GITHUB_REPO")
	}
	if branch := os.Getenv("GITHUB_BRANCH"); branch != "" && os.Getenv("LGATE_STORE_BRANCH") == "" {
		cfg.Store.Branch = branch
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv("LGATE_SERVER_PORT") == "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

// getConfigFilePath returns the config file location, overridable via env.
func getConfigFilePath() string {
	if path := os.Getenv("LGATE_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config, env takes precedence
func mergeConfigs(file, env Config) Config {
	merged := env

	if merged.Store.Token == "" {
		merged.Store.Token = file.Store.Token
	}
	if merged.Store.EncryptedTokenFile == "" {
		merged.Store.EncryptedTokenFile = file.Store.EncryptedTokenFile
	}
	if merged.Store.Repository == "" {
		merged.Store.Repository = file.Store.Repository
	}
	if merged.Store.APIBaseURL == "" {
		merged.Store.APIBaseURL = file.Store.APIBaseURL
	}
	if merged.Logging.FilePath == "" {
		merged.Logging.FilePath = file.Logging.FilePath
	}

	return merged
}

// validate checks the configuration for fatal misconfiguration. The store
// credential itself is validated lazily by the first store call, not here.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Store.Repository == "" {
		return fmt.Errorf("store repository is required (LGATE_STORE_REPOSITORY or GITHUB_REPO)")
	}
	if !strings.Contains(c.Store.Repository, "/") {
		return fmt.Errorf("store repository must be in owner/repo form, got %q", c.Store.Repository)
	}

	if c.Store.Token == "" && c.Store.EncryptedTokenFile == "" {
		return fmt.Errorf("store token is required (LGATE_STORE_TOKEN, GITHUB_TOKEN or an encrypted token file)")
	}

	if c.Store.KeysDocument == "" || c.Store.UsersDocument == "" {
		return fmt.Errorf("store document names must not be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// RepositoryParts splits the owner/repo setting. validate guarantees the
// separator is present.
func (s *StoreConfig) RepositoryParts() (owner, repo string) {
	parts := strings.SplitN(s.Repository, "/", 2)
	return parts[0], parts[1]
}

// Package config loads the chat client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultServerURL     = "ws://localhost:8000"
	DefaultLogLevel      = "INFO"
	DefaultDialTimeout   = 10 * time.Second
	DefaultInboundBuffer = 64
)

var validate = validator.New()

// Config defines the client-side environment variables.
type Config struct {
	ServerURL       string        `env:"CHAT_SERVER_URL" validate:"required,url,startswith=ws"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
	DialTimeout     time.Duration `env:"CHAT_DIAL_TIMEOUT" validate:"gte=0"`
	InboundBuffer   int           `env:"CHAT_INBOUND_BUFFER" validate:"gte=1,lte=65536"`
	CredentialsPath string        `env:"CHAT_CREDENTIALS_PATH" validate:"required"`
	Token           string        `env:"CHAT_TOKEN"`
	Username        string        `env:"CHAT_USERNAME"`
}

// Load reads an optional .env file, then the process environment, and
// returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnviron()
}

// FromEnviron builds a validated Config from the process environment only.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in unset values.
func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.InboundBuffer == 0 {
		c.InboundBuffer = DefaultInboundBuffer
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = defaultCredentialsPath()
	}
}

// Validate checks field constraints. It is exported so flag overrides can be
// re-checked after they are applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "livechat", "credentials.json")
}

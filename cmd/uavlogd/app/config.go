// Package app wires the analysis server together from its environment.
//
// Configuration is read from the process environment, optionally seeded
// from a .env file in the working directory. Every setting has a default
// so the daemon starts with nothing but an OPENAI_API_KEY.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultBindAddr       = "0.0.0.0:8000"
	defaultModel          = "gpt-4o-mini"
	defaultOrigins        = "http://localhost:8080,http://localhost:3000"
	defaultSessionTimeout = 3600
	defaultMaxUploadMB    = 100
	defaultUploadDir      = "uploads"
	defaultLogLevel       = "info"
)

type Config struct {
	BindAddr       string
	OpenAIKey      string
	Model          string
	Origins        []string
	SessionTimeout time.Duration
	MaxUploadBytes int64
	UploadDir      string
	ThresholdsFile string
	Level          string
}

// Load builds the daemon configuration from the environment. A missing
// .env file is fine; a malformed one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}
	v.AutomaticEnv()

	v.SetDefault("BIND_ADDR", defaultBindAddr)
	v.SetDefault("OPENAI_MODEL", defaultModel)
	v.SetDefault("CORS_ORIGINS", defaultOrigins)
	v.SetDefault("SESSION_TIMEOUT", defaultSessionTimeout)
	v.SetDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)
	v.SetDefault("UPLOAD_DIR", defaultUploadDir)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)

	c := &Config{
		BindAddr:       v.GetString("BIND_ADDR"),
		OpenAIKey:      v.GetString("OPENAI_API_KEY"),
		Model:          v.GetString("OPENAI_MODEL"),
		Origins:        splitCSV(v.GetString("CORS_ORIGINS")),
		SessionTimeout: time.Duration(v.GetInt("SESSION_TIMEOUT")) * time.Second,
		MaxUploadBytes: v.GetInt64("MAX_UPLOAD_MB") << 20,
		UploadDir:      v.GetString("UPLOAD_DIR"),
		ThresholdsFile: v.GetString("THRESHOLDS_FILE"),
		Level:          strings.ToLower(v.GetString("LOG_LEVEL")),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.BindAddr, err)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	if c.UploadDir == "" {
		return errors.New("upload directory is required")
	}
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	return nil
}

// LogLevel maps the configured level name onto slog's scale.
func (c *Config) LogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

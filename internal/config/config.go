package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// EnvConfigPath points at the YAML file when --config is not given.
const EnvConfigPath = "TADA_CONFIG"

type (
	Config struct {
		API     APIConfig     `yaml:"api"`
		Session SessionConfig `yaml:"session"`
		Log     LogConfig     `yaml:"log"`
		UI      UIConfig      `yaml:"ui"`
	}

	APIConfig struct {
		BaseURL string        `yaml:"base_url" env:"TADA_API_URL" env-default:"http://127.0.0.1:8000/api/"`
		Timeout time.Duration `yaml:"timeout" env:"TADA_API_TIMEOUT" env-default:"10s"`
	}

	SessionConfig struct {
		RefreshInterval time.Duration `yaml:"refresh_interval" env:"TADA_REFRESH_INTERVAL" env-default:"4m"`
		RefreshTimeout  time.Duration `yaml:"refresh_timeout" env:"TADA_REFRESH_TIMEOUT" env-default:"30s"`
		// TokenFile defaults to ~/.tada/tokens.json.
		TokenFile string `yaml:"token_file" env:"TADA_TOKEN_FILE"`
	}

	LogConfig struct {
		Level string `yaml:"level" env:"TADA_LOG_LEVEL" env-default:"info"`
		// File defaults to ~/.tada/tada.log; "-" means stderr.
		File string `yaml:"file" env:"TADA_LOG_FILE"`
	}

	UIConfig struct {
		Theme   string `yaml:"theme" env:"TADA_THEME" env-default:"classic"`
		NoColor bool   `yaml:"no_color" env:"TADA_NO_COLOR"`
	}
)

// Read loads .env from the working directory when present, then the YAML
// file at path (or $TADA_CONFIG, or ~/.tada/config.yaml when it exists),
// then the environment. Later sources win.
func Read(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if !explicit {
		path = defaultPath()
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			logrus.Debugf("reading config from %s", path)
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		} else if explicit {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	logrus.Debug("reading env")
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Session.RefreshInterval <= 0 {
		return fmt.Errorf("session.refresh_interval must be positive, got %s", c.Session.RefreshInterval)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative, got %s", c.API.Timeout)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tada", "config.yaml")
}

// Usage describes every environment variable Config reads.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

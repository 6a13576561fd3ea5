package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env carries bootstrap overrides sourced from the environment, so the
// bot token never has to live in the config file.
type Env struct {
	Token     string `env:"WARDEN_TOKEN"`
	StorePath string `env:"WARDEN_STORE_PATH"`
	LogLevel  string `env:"WARDEN_LOG_LEVEL"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// ApplyEnv overlays non-empty environment values onto the parsed config.
func (c *Config) ApplyEnv(e Env) {
	if v := strings.TrimSpace(e.Token); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(e.StorePath); v != "" {
		c.Store.Path = v
	}
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		c.Logging.Level = v
	}
}

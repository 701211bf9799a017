package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the immutable process-wide configuration. It is loaded once
// at startup; the gateway refuses to start when required fields are
// missing.
type Config struct {
	Discord DiscordConfig `json:"discord"`
	Webhook WebhookConfig `json:"webhook"`
	Flipt   FliptConfig   `json:"flipt"`
	Gateway GatewayConfig `json:"gateway"`
	Log     LogConfig     `json:"log"`
}

type DiscordConfig struct {
	Token string `env:"DISCORD_TOKEN" json:"token"`
}

type WebhookConfig struct {
	URL string `env:"WEBHOOK_URL" json:"url"`
}

type FliptConfig struct {
	URL       string `env:"FLIPT_URL"       json:"url"`
	Namespace string `env:"FLIPT_NAMESPACE" json:"namespace"`
	FlagKey   string `env:"FLIPT_FLAG_KEY"  json:"flag_key"`
}

// GatewayConfig holds the health endpoint bind address.
type GatewayConfig struct {
	Host string `env:"MIABRIDGE_GATEWAY_HOST" json:"host"`
	Port int    `env:"MIABRIDGE_GATEWAY_PORT" json:"port"`
}

type LogConfig struct {
	File string `env:"MIABRIDGE_LOG_FILE" json:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Flipt: FliptConfig{
			URL:       "http://localhost:8080",
			Namespace: "default",
			FlagKey:   "mia",
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
	}
}

// LoadConfig reads the JSON config at path (missing file is fine) and
// applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Flipt.URL = strings.TrimRight(cfg.Flipt.URL, "/")

	return cfg, nil
}

// Validate checks the fields without which the bridge cannot run.
func (c *Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Webhook.URL == "" {
		missing = append(missing, "WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Flipt.URL == "" {
		return errors.New("flipt url must not be empty")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults for the read-model window sizes. The chats-with-messages
// view truncates to the most recent chats and, per chat, the most
// recent messages.
const (
	DefaultChatLimit    = 25
	DefaultMessageLimit = 100
)

// Config represents the global ~/.wppsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	ChatLimit      int    `toml:"chat_limit"`
	MessageLimit   int    `toml:"message_limit"`
	ExportPath     string `toml:"export_path"`
	HTTPListenAddr string `toml:"http_listen_addr"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Default returns a config with all defaults applied, used when no
// config file exists yet.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ChatLimit <= 0 {
		c.ChatLimit = DefaultChatLimit
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = DefaultMessageLimit
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = "127.0.0.1:8477"
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Server.Address = "127.0.0.1"
	c.Server.Port = 8642
	c.Server.SendRPS = 5
	c.Server.SendBurst = 10
	c.Storage.DBPath = "./ghostdata"
	c.Chat.Window = 100
	c.Chat.ReconnectBackoff = Duration(3 * time.Second)
	c.Chat.SendRetries = 3
	c.Chat.RetryBase = Duration(1 * time.Second)
	c.Chat.DeliveryDelay = Duration(100 * time.Millisecond)
	c.Chat.PingInterval = Duration(10 * time.Second)
	c.Chat.MaxVoiceBytes = SizeBytes(1 << 20)
	c.Sweeper.Enabled = true
	c.Sweeper.Cron = "* * * * *"
	c.Sweeper.Grace = Duration(5 * time.Minute)
	c.Sweeper.BatchSize = 500
	c.Sweeper.BatchSleep = Duration(50 * time.Millisecond)
	c.Logging.Level = "info"
	return c
}

// Load reads and parses the YAML config file at path.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// LoadEffective resolves the effective config: defaults, then the file at
// path (if present), then GHOSTCHAT_* env overrides. It reports which
// sources contributed, for the startup banner.
func LoadEffective(path string) (Config, []string, error) {
	c := Default()
	var srcs []string
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fc, err := Load(path)
			if err != nil {
				return c, nil, err
			}
			c = fc
			srcs = append(srcs, "config")
		}
	}
	if applyEnv(&c) {
		srcs = append(srcs, "env")
	}
	return c, srcs, nil
}

func applyEnv(c *Config) bool {
	used := false
	if v := os.Getenv("GHOSTCHAT_ADDR"); v != "" {
		c.Server.Address = v
		used = true
	}
	if v := os.Getenv("GHOSTCHAT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
			used = true
		}
	}
	if v := os.Getenv("GHOSTCHAT_DB_PATH"); v != "" {
		c.Storage.DBPath = v
		used = true
	}
	if v := os.Getenv("GHOSTCHAT_PASSPHRASE"); v != "" {
		c.Crypto.Passphrase = v
		used = true
	}
	if v := os.Getenv("GHOSTCHAT_KEY_HEX"); v != "" {
		c.Crypto.KeyHex = v
		used = true
	}
	if v := os.Getenv("GHOSTCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
		used = true
	}
	if v := os.Getenv("GHOSTCHAT_SWEEPER_CRON"); v != "" {
		c.Sweeper.Cron = v
		used = true
	}
	return used
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then GHOSTCHAT_CONFIG, then the conventional local file.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("GHOSTCHAT_CONFIG"); v != "" {
		return v
	}
	return "ghostchat.yaml"
}

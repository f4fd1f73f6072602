package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from YAML with env overrides.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Crypto  CryptoConfig  `yaml:"crypto"`
	Chat    ChatConfig    `yaml:"chat"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the gateway listen settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// FastReceiptsAddr, when set, starts the fasthttp receipts fast path
	// on its own listener (e.g. "127.0.0.1:8643").
	FastReceiptsAddr string `yaml:"fast_receipts_addr"`
	// SendRPS/SendBurst flood-limit message sends per session.
	SendRPS   float64 `yaml:"send_rps"`
	SendBurst int     `yaml:"send_burst"`
}

// StorageConfig holds the pebble store location.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// CryptoConfig keys the message envelope. KeyHex wins over Passphrase when
// both are set.
type CryptoConfig struct {
	Passphrase string `yaml:"passphrase"`
	KeyHex     string `yaml:"key_hex"`
}

// ChatConfig tunes the room synchronizer and mutation paths.
type ChatConfig struct {
	// Window caps the live query to the most recent N messages.
	Window int `yaml:"window"`
	// ReconnectBackoff is the fixed delay between subscription retries.
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`
	// SendRetries caps write attempts before surfacing a failure.
	SendRetries int `yaml:"send_retries"`
	// RetryBase is the first retry delay; attempts back off exponentially.
	RetryBase Duration `yaml:"retry_base"`
	// DeliveryDelay is the lag before the fire-and-forget delivered flip.
	DeliveryDelay Duration `yaml:"delivery_delay"`
	// PingInterval drives the connection monitor; zero disables it.
	PingInterval Duration `yaml:"ping_interval"`
	// MaxVoiceBytes caps the stored audio blob size.
	MaxVoiceBytes SizeBytes `yaml:"max_voice_bytes"`
}

// SweeperConfig controls the background purge runner.
type SweeperConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// Grace is how long a deleted-for-everyone tombstone survives before
	// the record is reclaimed.
	Grace      Duration `yaml:"grace"`
	BatchSize  int      `yaml:"batch_size"`
	BatchSleep Duration `yaml:"batch_sleep"`
	DryRun     bool     `yaml:"dry_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns the host:port the gateway listens on.
func (c Config) Addr() string {
	host := c.Server.Address
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8642
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SizeBytes is a byte count unmarshaled from human-friendly strings like
// "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration with YAML parsing from strings like "100ms"
// or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Package app wires the daemon together: config validation, store, crypto
// envelope, sweeper and gateway, with a single Run that blocks until
// shutdown.
package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"ghostchat/internal/gateway"
	"ghostchat/internal/sweeper"
	"ghostchat/pkg/banner"
	"ghostchat/pkg/config"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/security"
	"ghostchat/pkg/store"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg     config.Config
	sources []string

	version   string
	commit    string
	buildDate string

	st    *store.Pebble
	env   *security.Envelope
	ready atomic.Bool
}

// New validates the config and initializes everything that does not need a
// running context: the pebble store and the crypto envelope. Call Run to
// start the sweeper and gateway and block until shutdown.
func New(cfg config.Config, sources []string, version, commit, buildDate string) (*App, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.Level)

	env, err := buildEnvelope(cfg.Crypto)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	return &App{
		cfg:       cfg,
		sources:   sources,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		env:       env,
	}, nil
}

// Run starts the sweeper and the gateway and blocks until ctx is cancelled
// or the gateway fails. The store closes on the way out.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg, a.sources, a.version, a.commit, a.buildDate)
	logger.Info("daemon_starting", "version", a.version, "commit", a.commit, "build_date", a.buildDate)

	sweepCancel, err := sweeper.Start(ctx, a.cfg.Sweeper, a.st)
	if err != nil {
		_ = a.st.Close()
		return err
	}
	defer sweepCancel()

	gw := gateway.New(a.cfg, a.st, a.env, a.ready.Load)
	a.ready.Store(true)

	runErr := gw.Run(ctx)

	a.ready.Store(false)
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Sync()
	return runErr
}

func validate(cfg config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if cfg.Crypto.Passphrase == "" && cfg.Crypto.KeyHex == "" {
		return fmt.Errorf("crypto.passphrase or crypto.key_hex is required")
	}
	if cfg.Chat.Window < 0 {
		return fmt.Errorf("chat.window must not be negative")
	}
	return nil
}

// buildEnvelope keys the envelope; an explicit key wins over a passphrase.
func buildEnvelope(c config.CryptoConfig) (*security.Envelope, error) {
	if c.KeyHex != "" {
		return security.NewEnvelopeHex(c.KeyHex)
	}
	return security.NewEnvelope(c.Passphrase)
}

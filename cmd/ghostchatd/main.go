package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"ghostchat/internal/app"
	"ghostchat/pkg/config"
)

// build metadata, set via ldflags during release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, sources, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags win over file and env when the user provided them.
	if setFlags["addr"] {
		host, portStr, err := net.SplitHostPort(addrVal)
		if err != nil {
			log.Fatalf("invalid -addr %q: %v", addrVal, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Fatalf("invalid -addr port %q: %v", portStr, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
		sources = append(sources, "flag:addr")
	}
	if setFlags["db"] {
		cfg.Storage.DBPath = dbVal
		sources = append(sources, "flag:db")
	}

	a, err := app.New(cfg, sources, version, commit, buildDate)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("daemon exited: %v", err)
	}
}

package banner

import (
	"fmt"
	"strings"

	"ghostchat/pkg/config"
)

const banner = `
 ██████╗ ██╗  ██╗ ██████╗ ███████╗████████╗ ██████╗██╗  ██╗ █████╗ ████████╗
██╔════╝ ██║  ██║██╔═══██╗██╔════╝╚══██╔══╝██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██║  ███╗███████║██║   ██║███████╗   ██║   ██║     ███████║███████║   ██║
██║   ██║██╔══██║██║   ██║╚════██║   ██║   ██║     ██╔══██║██╔══██║   ██║
╚██████╔╝██║  ██║╚██████╔╝███████║   ██║   ╚██████╗██║  ██║██║  ██║   ██║
 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚══════╝   ╚═╝    ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner with the effective config summary.
func Print(cfg config.Config, sources []string, version, commit, buildDate string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	if cfg.Server.FastReceiptsAddr != "" {
		fmt.Printf("Receipts: %s (fasthttp fast path)\n", cfg.Server.FastReceiptsAddr)
	}
	fmt.Printf("DB Path:  %s\n", cfg.Storage.DBPath)
	if cfg.Sweeper.Enabled {
		fmt.Printf("Sweeper:  %s (grace %s)\n", cfg.Sweeper.Cron, cfg.Sweeper.Grace.Duration())
	} else {
		fmt.Println("Sweeper:  disabled")
	}
	if version != "" {
		fmt.Printf("Version:  %s (%s, %s)\n", version, commit, buildDate)
	}
	if len(sources) > 0 {
		fmt.Printf("Sources:  %s\n", strings.Join(sources, ", "))
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/sessions                         - open a session")
	fmt.Println("POST /v1/sessions/{sid}/join              - join a room")
	fmt.Println("POST /v1/sessions/{sid}/messages          - send a message")
	fmt.Println("GET  /v1/sessions/{sid}/messages          - current decrypted view")
	fmt.Println("GET  /v1/sessions/{sid}/feed              - SSE view stream")
	fmt.Println("POST /v1/sessions/{sid}/wipe              - panic wipe")
	fmt.Println("GET  /metrics, /healthz, /readyz")
}

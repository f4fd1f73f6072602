package config

import "flag"

// ParseCommandFlags parses the daemon's command line. It returns the flag
// values plus a set of which flags the user provided explicitly, so callers
// can apply flag-wins precedence over file and env values.
func ParseCommandFlags() (addr, db, cfg string, set map[string]bool) {
	addrFlag := flag.String("addr", "", "listen address (host:port), overrides config")
	dbFlag := flag.String("db", "", "pebble database path, overrides config")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, set
}

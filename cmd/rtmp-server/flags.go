package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/alxayo/go-rtmpcast/internal/rtmp/server"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// server.Config so main.go can validate and map.
type cliConfig struct {
	configPath  string
	host        string
	port        int
	chunkSize   uint
	logLevel    string
	metricsAddr string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("rtmp-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configPath, "config", "", "Path to YAML configuration file (flags override)")
	fs.StringVar(&cfg.host, "host", "", "Bind host (overrides config)")
	fs.IntVar(&cfg.port, "port", 0, "Bind port (overrides config)")
	fs.UintVar(&cfg.chunkSize, "chunk-size", 0, "Outbound chunk size (overrides config)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address (empty disables)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	return cfg, nil
}

// buildServerConfig merges YAML configuration (when provided) with flag
// overrides.
func buildServerConfig(cli *cliConfig) (server.Config, error) {
	cfg := server.DefaultConfig()
	if cli.configPath != "" {
		loaded, err := server.LoadConfig(cli.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if cli.host != "" {
		cfg.Host = cli.host
	}
	if cli.port != 0 {
		cfg.Port = cli.port
	}
	if cli.chunkSize != 0 {
		cfg.ChunkSize = uint32(cli.chunkSize)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

package main

// Exit codes: 0 normal shutdown, 1 configuration error, 2 bind failure,
// 3 unrecoverable runtime error. Ctrl+C triggers graceful shutdown.

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/go-rtmpcast/internal/logger"
	srv "github.com/alxayo/go-rtmpcast/internal/rtmp/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		return 1
	}
	if cli.showVersion {
		fmt.Println(version)
		return 0
	}

	logger.Init()
	if err := logger.SetLevel(cli.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cli.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	cfg, err := buildServerConfig(cli)
	if err != nil {
		log.Error("configuration error", "error", err)
		return 1
	}

	server := srv.New(cfg)
	if err := server.Start(); err != nil {
		log.Error("failed to bind", "error", err)
		return 2
	}
	log.Info("server started", "addr", server.Addr().String(), "version", version)

	if cli.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cli.metricsAddr, mux); err != nil {
				log.Error("metrics listener failed", "error", err)
			}
		}()
		log.Info("metrics exposed", "addr", cli.metricsAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()
	select {
	case <-done:
		log.Info("server stopped cleanly")
		return 0
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
		return 3
	}
}

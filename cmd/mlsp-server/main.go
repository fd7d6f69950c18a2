// Command mlsp-server runs the authoritative Grid Clash server: it
// binds a UDP socket, wires up the session/state/snapshot/reliable
// engines, and serves Prometheus metrics until the match reaches
// GAME_OVER or the process receives a termination signal.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridclash/mlsp/internal/config"
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional; defaults apply)")
	listenAddr := flag.String("listen", "", "override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(2)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	log := logging.New("server", logging.ParseLevel(cfg.LogLevel))
	defer log.Close()

	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		log.Error("listen failed", "addr", cfg.ListenAddr, "err", err)
		log.Close()
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("listening", "addr", cfg.ListenAddr, "grid_size", cfg.GridSize, "scenario", cfg.TestScenario)

	met := metrics.NewServer()
	go func() {
		if err := met.Serve(cfg.MetricsAddr); err != nil {
			log.Warn("metrics server stopped", "err", err)
		}
	}()

	srv := server.New(cfg, conn, log, met)
	srv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info("shutdown requested")
			srv.Stop()
			return
		case <-time.After(200 * time.Millisecond):
			if result, ok := srv.Outcome(); ok {
				log.Info("match complete", "winner", result.Winner, "scoreboard", result.Scoreboard)
				srv.Stop()
				return
			}
		}
	}
}

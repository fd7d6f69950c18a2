// Command mlsp-client runs a headless Grid Clash client: it completes
// the join handshake with a server, follows the delta-snapshot stream
// through the render-delay buffer, and accepts cell-acquire requests
// from stdin ("row col") as its input surface. The graphical rendering
// surface is an external collaborator out of scope for this repo; a
// render.LogSink stands in for it.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gridclash/mlsp/internal/client"
	"github.com/gridclash/mlsp/internal/config"
	"github.com/gridclash/mlsp/internal/logging"
	"github.com/gridclash/mlsp/internal/metrics"
	"github.com/gridclash/mlsp/internal/render"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (optional; defaults apply)")
	serverAddr := flag.String("server", "", "override the configured server address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Exit(2)
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}

	log := logging.New("client", logging.ParseLevel(cfg.LogLevel))
	defer log.Close()

	if addr, err := config.LocalIPv4(); err == nil {
		log.Info("resolved local address", "addr", addr)
	}

	srvAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		log.Error("bad server address", "addr", cfg.ServerAddr, "err", err)
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		log.Error("listen failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("bound", "local", conn.LocalAddr(), "server", srvAddr, "scenario", cfg.TestScenario)

	met := metrics.NewClient()
	go func() {
		if err := met.Serve(cfg.ClientMetricsAddr); err != nil {
			log.Warn("metrics server stopped", "err", err)
		}
	}()

	sink := render.NewLogSink(log)
	c := client.New(cfg, srvAddr, conn, log, met, sink)
	c.Start()
	defer c.Stop()

	go readAcquireRequests(c, log)
	if cfg.SoakMode {
		log.Info("soak mode enabled, emitting synthetic clicks")
		go soakClicker(c, cfg.GridSize)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info("shutdown requested")
			return
		case <-time.After(200 * time.Millisecond):
			if c.Finished() {
				log.Info("match complete")
				return
			}
		}
	}
}

// soakClicker emits synthetic acquire requests at a steady rate once a
// player id has been assigned. It exists for the test-harness mode
// only; interactive runs leave it off.
func soakClicker(c *client.Client, gridSize int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if c.Finished() {
			return
		}
		if c.PlayerID() == "" {
			continue
		}
		c.SubmitAcquire(rng.Intn(gridSize), rng.Intn(gridSize), time.Now().UnixMilli())
	}
}

// readAcquireRequests is the client's input surface: it treats each
// "row col" line on stdin as a click at cell (row, col), stamped with
// the local time of the request. A graphical input source would call
// client.SubmitAcquire the same way.
func readAcquireRequests(c *client.Client, log *logging.Sink) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		row, errR := strconv.Atoi(fields[0])
		col, errC := strconv.Atoi(fields[1])
		if errR != nil || errC != nil {
			log.Warn("malformed acquire input", "line", fmt.Sprintf("%q", fields))
			continue
		}
		c.SubmitAcquire(row, col, time.Now().UnixMilli())
	}
}

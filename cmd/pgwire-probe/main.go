// Command pgwire-probe wires the pgwire client library into a small daemon:
// load a set of named connection targets from YAML, probe each one on an
// interval with a real query, and expose the results over HTTP. Adapted from
// the teacher's cmd/dbbouncer/main.go init/wire/wait-for-signal/shutdown
// shape, trimmed to this library's scope (no proxy listeners, no router, no
// pool manager — just dial, probe, report).
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quaypg/pgwire/internal/config"
	"github.com/quaypg/pgwire/internal/healthcheck"
	"github.com/quaypg/pgwire/internal/metrics"
	"github.com/quaypg/pgwire/internal/statsserver"
)

func main() {
	configPath := flag.String("config", "configs/pgwire-probe.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("pgwire-probe starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded from %s (%d connections)", *configPath, len(cfg.Connections))

	m := metrics.New()
	hc := healthcheck.NewChecker(cfg.Connections, cfg.Probe, m)
	hc.Start()

	srv := statsserver.NewServer(hc, m, cfg.Listen, len(cfg.Connections))
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start stats server: %v", err)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("Reloading configuration...")
		hc.Stop()
		hc = healthcheck.NewChecker(newCfg.Connections, newCfg.Probe, m)
		hc.Start()
	})
	if err != nil {
		log.Printf("Warning: config hot-reload not available: %v", err)
	}

	log.Printf("pgwire-probe ready - API:%d", cfg.Listen.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	if err := srv.Stop(); err != nil {
		log.Printf("stats server shutdown: %v", err)
	}
	hc.Stop()

	log.Printf("pgwire-probe stopped")
}

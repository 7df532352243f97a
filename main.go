package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dataexplorer/internal/config"
	"dataexplorer/internal/engine"
	"dataexplorer/internal/eventbus"
	"dataexplorer/internal/httpapi"
	"dataexplorer/internal/store"
	"dataexplorer/internal/upstream"
)

func main() {
	cfgPath := os.Getenv("DATAEXPLORER_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log.Println("Initializing data explorer backend...")
	log.Printf("Upstream: %s", cfg.UpstreamBaseURL)
	log.Printf("Data dir: %s", cfg.DataDir)
	log.Printf("Listen: %s", cfg.ListenAddr)

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	bus := eventbus.New()
	defer bus.Close()
	eng := engine.New(client, st, cfg.FetchConcurrency, bus)

	ctx, cancel := context.WithCancel(context.Background())

	restartChan := make(chan struct{}, 1)
	srv := httpapi.NewServer(eng, bus, cfg.ListenAddr,
		httpapi.WithOnShutdown(func() {
			log.Println("shutdown requested via HTTP Surface")
			cancel()
		}),
		httpapi.WithOnRestart(func() {
			log.Println("restart requested via HTTP Surface")
			select {
			case restartChan <- struct{}{}:
			default:
			}
		}),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting HTTP Surface on %s", cfg.ListenAddr)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP Surface failed: %v", err)
		}
	}()

	select {
	case <-sigChan:
		log.Println("shutting down (signal)...")
	case <-restartChan:
		log.Println("restarting...")
	case <-ctx.Done():
		log.Println("shutting down (HTTP request)...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	cancel()
}

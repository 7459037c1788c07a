package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcolletti/prepcall/internal/agent"
	"github.com/mcolletti/prepcall/internal/config"
	"github.com/mcolletti/prepcall/internal/httpapi"
	"github.com/mcolletti/prepcall/internal/observability"
	"github.com/mcolletti/prepcall/internal/relay"
	"github.com/mcolletti/prepcall/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	interviewStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("interview store init failed: %v", err)
	}
	defer interviewStore.Close()

	agentClient := agent.NewDeepgramClient(agent.DeepgramConfig{
		APIKey: cfg.DeepgramAPIKey,
		WSURL:  cfg.AgentWSURL,
	})

	relayServer := relay.NewServer(cfg, interviewStore, agentClient, metrics)
	api := httpapi.New(cfg, interviewStore, relayServer)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("interview relay listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

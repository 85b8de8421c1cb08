package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livecapd/livecap/internal/audio"
	"github.com/livecapd/livecap/internal/config"
	"github.com/livecapd/livecap/internal/server"
	"github.com/livecapd/livecap/internal/session"
	"github.com/livecapd/livecap/internal/token"
)

func main() {
	log.Println("livecap: starting")

	configPath := flag.String("config", envOrDefault(config.EnvPrefix+"CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	if err := audio.Initialize(); err != nil {
		log.Printf("warning: audio subsystem unavailable, captions require a later capture retry: %v", err)
	} else {
		defer audio.Teardown()
	}

	var tokens session.TokenFetcher
	if cfg.TokenURL != "" {
		tokens = token.NewClient(cfg.TokenURL)
	} else {
		tokens = token.Static(cfg.DeepgramAPIKey)
	}

	sess := session.New(session.Config{
		Transport:       cfg.TransportOptions(),
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		ChunkInterval:   cfg.ParsedChunkInterval(),
	}, tokens)
	defer sess.Stop()

	hub := server.NewHub()
	sess.OnCaption(hub.BroadcastCaption)
	sess.OnError(hub.BroadcastError)

	handler := server.Handler(hub, sess, token.Handler(cfg.DeepgramAPIKey))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	go func() {
		log.Printf("livecap: control API on http://%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("livecap: shutting down")
	sess.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

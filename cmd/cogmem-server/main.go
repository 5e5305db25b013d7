package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cogmem/cogmem/internal/config"
	"github.com/cogmem/cogmem/internal/engine"
	"github.com/cogmem/cogmem/internal/llm"
	"github.com/cogmem/cogmem/internal/server"
	"github.com/cogmem/cogmem/internal/storage"
	"github.com/cogmem/cogmem/internal/storage/postgres"
	"github.com/cogmem/cogmem/internal/storage/sqlite"
	"github.com/cogmem/cogmem/internal/vector"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	oracle, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize embedding client: %v", err)
	}
	if cfg.Memory.EmbeddingCacheSize > 0 {
		cached, err := llm.NewCachingEmbedder(embedder, cfg.Memory.EmbeddingCacheSize)
		if err != nil {
			log.Fatalf("Failed to initialize embedding cache: %v", err)
		}
		defer cached.Close()
		embedder = cached
	}

	indexDir := filepath.Join(cfg.Storage.DataPath, "indexes")
	if err := os.MkdirAll(indexDir, 0o700); err != nil {
		log.Fatalf("Failed to create index directory: %v", err)
	}
	registry := vector.NewRegistry(indexDir, cfg.Memory.EmbeddingDim)
	if cfg.Memory.WatchIndexDir {
		watcher := vector.NewWatcher(registry)
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to start index watcher: %v", err)
		}
		defer watcher.Stop()
	}

	eng := engine.New(store, oracle, embedder, registry, cfg.Memory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := server.Start(ctx, cfg, eng)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("cogmem server listening on http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.DSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, err
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "cogmem.db"))
	}
}

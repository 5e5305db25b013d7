// Command cogmem-reindex rebuilds every conversation's vector index from
// the relational store. Run it offline, or against a live server with the
// index watcher enabled so rebuilt files are picked up automatically.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/cogmem/cogmem/internal/config"
	"github.com/cogmem/cogmem/internal/storage/postgres"
	"github.com/cogmem/cogmem/internal/storage/sqlite"
	"github.com/cogmem/cogmem/internal/vector"
)

// conversationStore is the slice of the storage layer the reindexer needs.
type conversationStore interface {
	vector.MemoryLister
	Conversations(ctx context.Context) ([]string, error)
	Close() error
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	registry := vector.NewRegistry(filepath.Join(cfg.Storage.DataPath, "indexes"), cfg.Memory.EmbeddingDim)

	ctx := context.Background()
	conversations, err := store.Conversations(ctx)
	if err != nil {
		log.Fatalf("Failed to list conversations: %v", err)
	}
	if len(conversations) == 0 {
		log.Println("No conversations found, nothing to do")
		return
	}

	var failed int
	for _, id := range conversations {
		if _, err := registry.Rebuild(ctx, store, id); err != nil {
			log.Printf("Failed to rebuild index for conversation %s: %v", id, err)
			failed++
		}
	}

	log.Printf("Rebuilt %d of %d conversation indexes", len(conversations)-failed, len(conversations))
	if failed > 0 {
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (conversationStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewStore(cfg.Storage.DSN)
	}
	return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "cogmem.db"))
}

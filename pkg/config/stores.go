package config

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/store"
	"github.com/marmos91/goyp/pkg/store/badger"
	"github.com/marmos91/goyp/pkg/store/memory"
	s3store "github.com/marmos91/goyp/pkg/store/s3"
)

// CreateStore opens the map store selected by cfg.
//
// Supported types:
//   - "memory": pkg/store/memory (ephemeral)
//   - "badger": pkg/store/badger (persistent, or in-memory when requested)
func CreateStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		st, err := badger.New(ctx, badger.Config{
			DBPath:   cfg.Badger.DBPath,
			InMemory: cfg.Badger.InMemory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create badger store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// LoadMaps loads the configured map sources into st under cfg.Domain. It
// returns the number of entries loaded.
func LoadMaps(ctx context.Context, st store.Store, cfg *ServerConfig) (int, error) {
	total := 0

	if cfg.Maps.Dir != "" {
		n, err := store.LoadDir(ctx, st, cfg.Domain, cfg.Maps.Dir)
		if err != nil {
			return total, err
		}
		logger.Info("Loaded %d entries from %s", n, cfg.Maps.Dir)
		total += n
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Maps.Files)) {
		n, err := loadMapFile(ctx, st, cfg.Domain, name, cfg.Maps.Files[name])
		if err != nil {
			return total, err
		}
		logger.Info("Loaded %d entries into %s", n, name)
		total += n
	}

	if cfg.Maps.S3.Bucket != "" {
		n, err := loadS3(ctx, st, cfg.Domain, &cfg.Maps.S3)
		if err != nil {
			return total, err
		}
		logger.Info("Loaded %d entries from s3://%s/%s", n, cfg.Maps.S3.Bucket, cfg.Maps.S3.Prefix)
		total += n
	}

	return total, nil
}

func loadS3(ctx context.Context, st store.Store, domain string, cfg *S3MapsConfig) (int, error) {
	client, err := s3store.NewClient(ctx, s3store.ClientConfig{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return 0, err
	}
	src, err := s3store.NewSource(client, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return 0, err
	}
	return src.Load(ctx, st, domain)
}

func loadMapFile(ctx context.Context, st store.Store, domain, mapName, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("map %s: %w", mapName, err)
	}
	defer func() { _ = f.Close() }()
	return store.Load(ctx, st, domain, mapName, f)
}

package server

import (
	"context"
	"fmt"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/notify"
	"github.com/minelist/status-sync/store"
	"github.com/minelist/status-sync/store/leveldbstore"
	"github.com/minelist/status-sync/store/mongostore"
)

// OpenStore opens the storage backend selected by the configuration.
func OpenStore(ctx context.Context, cfg *config.Storage) (store.Store, error) {
	switch cfg.Backend {
	case config.StorageBackendLevelDB:
		return leveldbstore.Open(cfg.LevelDBPath)
	case config.StorageBackendMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Backend)
	}
}

func newNotifier(cfg *config.Notify) (notify.Notifier, error) {
	switch cfg.Backend {
	case config.NotifyBackendNone, "":
		return notify.Noop{}, nil
	case config.NotifyBackendLog:
		return notify.Log{}, nil
	case config.NotifyBackendRedis:
		return notify.NewRedis(cfg), nil
	default:
		return nil, fmt.Errorf("unknown notify backend '%s'", cfg.Backend)
	}
}

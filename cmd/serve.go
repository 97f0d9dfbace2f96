package main

import (
	"slices"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/metrics"
	"github.com/minelist/status-sync/server"
)

const (
	categoryServer    = "Server:"
	categoryStorage   = "Storage:"
	categoryStatus    = "Status:"
	categorySync      = "Sync:"
	categoryListCache = "List cache:"
	categoryVote      = "Vote:"
	categoryNotify    = "Notify:"
)

func storageFlags(cfg *config.Storage) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Category:    categoryStorage,
			Destination: &cfg.Backend,
			EnvVars:     []string{envPrefix + "STORAGE_BACKEND"},
			Name:        "storage-backend",
			Usage:       "durable storage `backend` (leveldb, mongo)",
			Value:       config.StorageBackendLevelDB,
		},

		&cli.StringFlag{
			Category:    categoryStorage,
			Destination: &cfg.LevelDBPath,
			EnvVars:     []string{envPrefix + "STORAGE_LEVELDB_PATH"},
			Name:        "storage-leveldb-path",
			Usage:       "leveldb database `directory`",
			Value:       "./data/leveldb",
		},

		&cli.StringFlag{
			Category:    categoryStorage,
			Destination: &cfg.MongoURI,
			EnvVars:     []string{envPrefix + "STORAGE_MONGO_URI"},
			Name:        "storage-mongo-uri",
			Usage:       "mongodb connection `uri`",
		},

		&cli.StringFlag{
			Category:    categoryStorage,
			Destination: &cfg.MongoDatabase,
			EnvVars:     []string{envPrefix + "STORAGE_MONGO_DATABASE"},
			Name:        "storage-mongo-database",
			Usage:       "mongodb database `name`",
			Value:       "status-sync",
		},
	}
}

func CommandServe(cfg *config.Config, configFile *string) *cli.Command {
	serverFlags := []cli.Flag{
		&cli.StringFlag{
			Category:    categoryServer,
			Destination: &cfg.Server.ListenAddress,
			EnvVars:     []string{envPrefix + "SERVER_LISTEN_ADDRESS"},
			Name:        "server-listen-address",
			Usage:       "serve the api and metrics at the address of `host:port`",
			Value:       "0.0.0.0:8080",
		},
	}

	statusFlags := []cli.Flag{
		&cli.StringFlag{
			Category:    categoryStatus,
			Destination: &cfg.Status.BaseURL,
			EnvVars:     []string{envPrefix + "STATUS_BASE_URL"},
			Name:        "status-base-url",
			Usage:       "base `url` of the server status provider",
			Value:       "https://api.mcsrvstat.us/3/",
		},

		&cli.StringFlag{
			Category:    categoryStatus,
			Destination: &cfg.Status.UserAgent,
			EnvVars:     []string{envPrefix + "STATUS_USER_AGENT"},
			Name:        "status-user-agent",
			Usage:       "user-agent `header` sent to the status provider",
			Value:       "status-sync/" + version,
		},

		&cli.DurationFlag{
			Category:    categoryStatus,
			Destination: &cfg.Status.Timeout,
			EnvVars:     []string{envPrefix + "STATUS_TIMEOUT"},
			Name:        "status-timeout",
			Usage:       "hard `timeout` of a single status poll",
			Value:       4 * time.Second,
		},

		&cli.DurationFlag{
			Category:    categoryStatus,
			Destination: &cfg.Status.TTL,
			EnvVars:     []string{envPrefix + "STATUS_TTL"},
			Name:        "status-ttl",
			Usage:       "`duration` a polled status is served from memory",
			Value:       5 * time.Minute,
		},

		&cli.DurationFlag{
			Category:    categoryStatus,
			Destination: &cfg.Status.SweepInterval,
			EnvVars:     []string{envPrefix + "STATUS_SWEEP_INTERVAL"},
			Name:        "status-sweep-interval",
			Usage:       "`interval` between removals of stale status entries",
			Value:       10 * time.Minute,
		},
	}

	syncFlags := []cli.Flag{
		&cli.BoolFlag{
			Category:    categorySync,
			Destination: &cfg.Sync.Enabled,
			EnvVars:     []string{envPrefix + "SYNC_ENABLED"},
			Name:        "sync-enabled",
			Usage:       "periodically write live statuses to the store",
			Value:       true,
		},

		&cli.DurationFlag{
			Category:    categorySync,
			Destination: &cfg.Sync.Interval,
			EnvVars:     []string{envPrefix + "SYNC_INTERVAL"},
			Name:        "sync-interval",
			Usage:       "`interval` between sync cycles",
			Value:       time.Minute,
		},

		&cli.IntFlag{
			Category:    categorySync,
			Destination: &cfg.Sync.Parallelism,
			EnvVars:     []string{envPrefix + "SYNC_PARALLELISM"},
			Name:        "sync-parallelism",
			Usage:       "maximum `count` of servers refreshed at once",
			Value:       4,
		},
	}

	listCacheFlags := []cli.Flag{
		&cli.DurationFlag{
			Category:    categoryListCache,
			Destination: &cfg.ListCache.TTL,
			EnvVars:     []string{envPrefix + "LIST_CACHE_TTL"},
			Name:        "list-cache-ttl",
			Usage:       "`duration` the public server list is served from memory",
			Value:       time.Minute,
		},

		&cli.IntFlag{
			Category:    categoryListCache,
			Destination: &cfg.ListCache.CleanupThreshold,
			EnvVars:     []string{envPrefix + "LIST_CACHE_CLEANUP_THRESHOLD"},
			Name:        "list-cache-cleanup-threshold",
			Usage:       "`count` of cached servers above which stale ones are evicted",
			Value:       100,
		},
	}

	voteFlags := []cli.Flag{
		&cli.DurationFlag{
			Category:    categoryVote,
			Destination: &cfg.Vote.DefaultCooldown,
			EnvVars:     []string{envPrefix + "VOTE_DEFAULT_COOLDOWN"},
			Name:        "vote-default-cooldown",
			Usage:       "cooldown `window` for servers without their own",
			Value:       12 * time.Hour,
		},

		&cli.DurationFlag{
			Category:    categoryVote,
			Destination: &cfg.Vote.BroadcastTimeout,
			EnvVars:     []string{envPrefix + "VOTE_BROADCAST_TIMEOUT"},
			Name:        "vote-broadcast-timeout",
			Usage:       "`timeout` for announcing a rewarded vote",
			Value:       5 * time.Second,
		},
	}

	notifyFlags := []cli.Flag{
		&cli.StringFlag{
			Category:    categoryNotify,
			Destination: &cfg.Notify.Backend,
			EnvVars:     []string{envPrefix + "NOTIFY_BACKEND"},
			Name:        "notify-backend",
			Usage:       "reward vote notification `backend` (none, log, redis)",
			Value:       config.NotifyBackendNone,
		},

		&cli.StringFlag{
			Category:    categoryNotify,
			Destination: &cfg.Notify.RedisAddress,
			EnvVars:     []string{envPrefix + "NOTIFY_REDIS_ADDRESS"},
			Name:        "notify-redis-address",
			Usage:       "redis `host:port` to publish to",
		},

		&cli.StringFlag{
			Category:    categoryNotify,
			Destination: &cfg.Notify.RedisPassword,
			EnvVars:     []string{envPrefix + "NOTIFY_REDIS_PASSWORD"},
			Name:        "notify-redis-password",
			Usage:       "redis `password`",
		},

		&cli.IntFlag{
			Category:    categoryNotify,
			Destination: &cfg.Notify.RedisDB,
			EnvVars:     []string{envPrefix + "NOTIFY_REDIS_DB"},
			Name:        "notify-redis-db",
			Usage:       "redis database `number`",
		},

		&cli.StringFlag{
			Category:    categoryNotify,
			Destination: &cfg.Notify.RedisChannel,
			EnvVars:     []string{envPrefix + "NOTIFY_REDIS_CHANNEL"},
			Name:        "notify-redis-channel",
			Usage:       "redis pub/sub `channel` for reward votes",
			Value:       "status-sync:votes",
		},
	}

	flags := slices.Concat(
		serverFlags,
		storageFlags(&cfg.Storage),
		statusFlags,
		syncFlags,
		listCacheFlags,
		voteFlags,
		notifyFlags,
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "run the status sync and the voting api",
		Flags: flags,

		Before: func(clictx *cli.Context) error {
			if err := loadConfigFile(cfg, *configFile); err != nil {
				return err
			}
			if err := cfg.Preprocess(); err != nil {
				return err
			}
			return metrics.Setup(clictx.Context)
		},

		Action: func(_ *cli.Context) error {
			s, err := server.New(cfg)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}

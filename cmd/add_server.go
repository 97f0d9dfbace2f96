package main

import (
	"errors"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/server"
	"github.com/minelist/status-sync/store"
)

const (
	categoryRecord = "Record:"
)

func CommandAddServer(cfg *config.Config, configFile *string) *cli.Command {
	var (
		rec      store.ServerRecord
		cooldown time.Duration
	)

	recordFlags := []cli.Flag{
		&cli.StringFlag{
			Category:    categoryRecord,
			Destination: &rec.Slug,
			Name:        "slug",
			Required:    true,
			Usage:       "unique `slug` of the server",
		},

		&cli.StringFlag{
			Category:    categoryRecord,
			Destination: &rec.Name,
			Name:        "name",
			Usage:       "display `name` of the server",
		},

		&cli.StringFlag{
			Category:    categoryRecord,
			Destination: &rec.Address,
			Name:        "address",
			Usage:       "game `host[:port]` to poll for status",
		},

		&cli.DurationFlag{
			Category:    categoryRecord,
			Destination: &cooldown,
			Name:        "vote-cooldown",
			Usage:       "per-server vote cooldown `window` (0 for the default)",
		},

		&cli.StringFlag{
			Category:    categoryRecord,
			Destination: &rec.Secret,
			Name:        "secret",
			Usage:       "reward `secret` shared with the game server",
		},

		&cli.BoolFlag{
			Category:    categoryRecord,
			Destination: &rec.VotingRewardEnabled,
			Name:        "reward-enabled",
			Usage:       "make votes with the correct secret eligible for a reward",
		},

		&cli.BoolFlag{
			Category:    categoryRecord,
			Destination: &rec.Disabled,
			Name:        "disabled",
			Usage:       "hide the server from the list and the sync",
		},
	}

	return &cli.Command{
		Name:  "add-server",
		Usage: "create or update a listed server",
		Flags: append(storageFlags(&cfg.Storage), recordFlags...),

		Before: func(_ *cli.Context) error {
			if err := loadConfigFile(cfg, *configFile); err != nil {
				return err
			}
			if strings.TrimSpace(rec.Slug) == "" {
				return errors.New("server slug must not be empty")
			}
			if cooldown < 0 {
				return errors.New("vote cooldown must not be negative")
			}
			return cfg.Storage.Preprocess()
		},

		Action: func(clictx *cli.Context) error {
			l := zap.L()

			st, err := server.OpenStore(clictx.Context, &cfg.Storage)
			if err != nil {
				return err
			}
			defer st.Close()

			rec.Slug = strings.TrimSpace(rec.Slug)
			rec.VoteCooldownMs = cooldown.Milliseconds()
			rec.CreatedAt = time.Now().UTC()

			if err := st.PutServer(clictx.Context, rec); err != nil {
				return err
			}

			l.Info("Server saved",
				zap.String("server_slug", rec.Slug),
				zap.String("server_address", rec.Address),
				zap.Bool("disabled", rec.Disabled),
			)
			return nil
		},
	}
}

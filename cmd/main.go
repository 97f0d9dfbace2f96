package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/logutils"
)

var (
	version = "development"
)

const (
	envPrefix = "STATUS_SYNC_"
)

func main() {
	cfg := &config.Config{}
	var configFile string

	app := &cli.App{
		Name:    "status-sync",
		Usage:   "Keeps a game-server list in sync with live status and gates the votes for it",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Destination: &cfg.Log.Level,
				EnvVars:     []string{envPrefix + "LOG_LEVEL"},
				Name:        "log-level",
				Usage:       "logging level",
				Value:       "info",
			},

			&cli.StringFlag{
				Destination: &cfg.Log.Mode,
				EnvVars:     []string{envPrefix + "LOG_MODE"},
				Name:        "log-mode",
				Usage:       "logging mode",
				Value:       "prod",
			},

			&cli.StringFlag{
				Destination: &configFile,
				EnvVars:     []string{envPrefix + "CONFIG"},
				Name:        "config",
				Usage:       "yaml `file` with settings that take precedence over the flags",
			},
		},

		Before: func(_ *cli.Context) error {
			return setupLogger(&cfg.Log)
		},

		Action: func(clictx *cli.Context) error {
			return cli.ShowAppHelp(clictx)
		},

		Commands: []*cli.Command{
			CommandServe(cfg, &configFile),
			CommandAddServer(cfg, &configFile),
			CommandHelp(cfg),
		},
	}

	defer func() {
		zap.L().Sync() //nolint:errcheck
	}()
	if err := app.Run(os.Args); err != nil {
		zap.L().Error("Failed with error", zap.Error(err))
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Log) error {
	l, err := logutils.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure the logging: %s\n", err)
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}

// loadConfigFile applies the yaml overlay (when one is given) and re-creates
// the logger in case the file changed the logging settings.
func loadConfigFile(cfg *config.Config, path string) error {
	if path == "" {
		return nil
	}
	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	return setupLogger(&cfg.Log)
}

package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rlch/moviegraph"
	"github.com/rlch/moviegraph/service"
	"github.com/rlch/moviegraph/stores/instrument"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (default: nearest .moviegraph.yaml)",
			Sources: cli.EnvVars("MOVIEGRAPH_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "store",
			Aliases: []string{"s"},
			Usage:   "store backend (overrides config)",
			Sources: cli.EnvVars("MOVIEGRAPH_STORE"),
		},
		&cli.StringFlag{
			Name:    "uri",
			Usage:   "store connection URI",
			Sources: cli.EnvVars("MOVIEGRAPH_URI"),
		},
		&cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "store username",
			Sources: cli.EnvVars("MOVIEGRAPH_USER"),
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"p"},
			Usage:   "store password",
			Sources: cli.EnvVars("MOVIEGRAPH_PASS"),
		},
		&cli.StringFlag{
			Name:    "seed",
			Usage:   `dataset file for the memory store ("none" for an empty store)`,
			Sources: cli.EnvVars("MOVIEGRAPH_SEED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level: debug, info, warn or error",
			Sources: cli.EnvVars("MOVIEGRAPH_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "log-dev",
			Usage:   "human-readable development logging",
			Sources: cli.EnvVars("MOVIEGRAPH_LOG_DEV"),
		},
	}
}

// loadConfig reads the --config file or the nearest one above dir, applies
// flag overrides and validates the result. Without a config file the
// defaults are used.
func loadConfig(cmd *cli.Command, dir string) (*moviegraph.Config, error) {
	var (
		cfg *moviegraph.Config
		err error
	)

	if path := cmd.String("config"); path != "" {
		cfg, err = moviegraph.LoadConfigFile(path)
	} else {
		cfg, err = moviegraph.LoadConfig(dir)
		if errors.Is(err, moviegraph.ErrConfigNotFound) {
			cfg, err = moviegraph.DefaultConfig(), nil
		}
	}

	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg)

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFlags(cmd *cli.Command, cfg *moviegraph.Config) {
	if cmd.IsSet("store") {
		cfg.Store = cmd.String("store")
	}

	if cmd.IsSet("uri") {
		cfg.Connection.URI = cmd.String("uri")
	}

	if cmd.IsSet("username") {
		cfg.Connection.Username = cmd.String("username")
	}

	if cmd.IsSet("password") {
		cfg.Connection.Password = cmd.String("password")
	}

	if cmd.IsSet("seed") {
		cfg.Seed = cmd.String("seed")
	}

	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}

	if cmd.IsSet("log-dev") {
		cfg.Log.Development = cmd.Bool("log-dev")
	}

	// Server flags are only defined on serve.
	if cmd.IsSet("addr") {
		cfg.Server.Address = cmd.String("addr")
	}

	if cmd.IsSet("path") {
		cfg.Server.Path = cmd.String("path")
	}

	if cmd.IsSet("cors-origin") {
		cfg.Server.CORSOrigins = cmd.StringSlice("cors-origin")
	}

	if cmd.IsSet("concurrency") {
		cfg.Server.Concurrency = int(cmd.Int("concurrency"))
	}
}

// newLogger builds the zap logger described by cfg, writing to stderr.
func newLogger(cfg moviegraph.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}

		zcfg.Level = level
	}

	return zcfg.Build()
}

// env is everything a command needs to execute requests.
type env struct {
	cfg     *moviegraph.Config
	logger  *zap.Logger
	store   *instrument.Store
	service *service.Service
}

// setup loads configuration found from dir and opens the instrumented
// store. Store metrics are registered with reg.
func setup(cmd *cli.Command, dir string, reg prometheus.Registerer) (*env, error) {
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := moviegraph.NewStore(cfg.Store, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	wrapped, err := instrument.Wrap(store,
		instrument.WithLogger(logger.Named("store")),
		instrument.WithRegisterer(reg),
	)
	if err != nil {
		_ = store.Close()

		return nil, err
	}

	logger.Debug("Opened store", zap.String("store", cfg.Store), zap.String("uri", cfg.Connection.URI))

	svc := service.New(wrapped,
		service.WithLogger(logger.Named("service")),
		service.WithConcurrency(cfg.Server.Concurrency),
	)

	return &env{cfg: cfg, logger: logger, store: wrapped, service: svc}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
	_ = e.logger.Sync()
}

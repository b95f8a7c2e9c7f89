package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/rlch/moviegraph/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the GraphQL API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address (overrides config)",
				Sources: cli.EnvVars("MOVIEGRAPH_ADDR"),
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "GraphQL endpoint path (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:    "cors-origin",
				Usage:   "allowed CORS origin (repeatable, overrides config)",
				Sources: cli.EnvVars("MOVIEGRAPH_CORS_ORIGINS"),
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "maximum resolvers running at once per request (0 = unbounded)",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e, err := setup(cmd, ".", reg)
	if err != nil {
		return err
	}

	defer e.Close()

	cfg := e.cfg.Server

	exec, err := e.service.NewExecutor()
	if err != nil {
		return err
	}

	srv, err := server.New(exec,
		server.WithLogger(e.logger.Named("http")),
		server.WithPath(cfg.Path),
		server.WithCORSOrigins(cfg.CORSOrigins...),
		server.WithRegistry(reg),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, cfg.Address)
}

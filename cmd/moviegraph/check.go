package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/rlch/moviegraph/check"
)

var ErrNoCheckFiles = errors.New("no check files found")

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Run check files against the configured store",
		ArgsUsage: "[files or directories...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print passing and skipped cases too",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "stop on first failure",
			},
			&cli.StringFlag{
				Name:  "run",
				Usage: "run only cases whose name matches pattern",
			},
		},
		Action: runCheck,
	}
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		args = []string{"."}
	}

	files, err := collectCheckFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoCheckFiles
	}

	var filter *regexp.Regexp

	if pattern := cmd.String("run"); pattern != "" {
		filter, err = regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid --run pattern: %w", err)
		}
	}

	e, err := setup(cmd, filepath.Dir(files[0]), prometheus.NewRegistry())
	if err != nil {
		return err
	}

	defer e.Close()

	exec, err := e.service.NewExecutor()
	if err != nil {
		return err
	}

	ok := true

	for _, path := range files {
		f, err := check.Load(path)
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, path)

		runner := check.New(
			check.WithFailFast(cmd.Bool("fail-fast")),
			check.WithFilter(filter),
			check.WithReporter(check.NewReporter(os.Stdout, cmd.Bool("verbose"))),
		)

		result, err := runner.Run(ctx, exec, f)
		if err != nil {
			return fmt.Errorf("running %s: %w", path, err)
		}

		if !result.Ok() {
			ok = false

			if cmd.Bool("fail-fast") {
				break
			}
		}
	}

	if !ok {
		return cli.Exit("", 1)
	}

	return nil
}

func collectCheckFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, arg)

			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if !d.IsDir() && isCheckFile(path) {
				files = append(files, path)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

func isCheckFile(path string) bool {
	return strings.HasSuffix(path, ".check.yaml") || strings.HasSuffix(path, ".check.yml")
}

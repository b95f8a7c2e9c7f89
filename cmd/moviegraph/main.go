// Package main provides the moviegraph CLI: a GraphQL server over a movie
// graph store plus tools to query and check it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	// Register stores.
	_ "github.com/rlch/moviegraph/stores/memory"
	_ "github.com/rlch/moviegraph/stores/neo4j"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "moviegraph",
		Version: version,
		Usage:   "GraphQL API over a movie review graph",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			serveCommand(),
			queryCommand(),
			checkCommand(),
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

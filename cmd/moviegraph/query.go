package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/rlch/moviegraph/graphql"
)

var ErrNoDocument = errors.New("no query document given (pass it as an argument, @file or on stdin)")

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Execute one GraphQL document and print the response",
		ArgsUsage: "[document | @file | -]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "variables",
				Usage: "variables as a JSON object",
			},
			&cli.StringFlag{
				Name:  "operation",
				Usage: "operation name",
			},
			&cli.BoolFlag{
				Name:  "compact",
				Usage: "never indent the output",
			},
		},
		Action: runQuery,
	}
}

func runQuery(ctx context.Context, cmd *cli.Command) error {
	doc, err := readDocument(cmd.Args().First(), os.Stdin)
	if err != nil {
		return err
	}

	req := graphql.Request{
		Query:         doc,
		OperationName: cmd.String("operation"),
	}

	if raw := cmd.String("variables"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()

		err := dec.Decode(&req.Variables)
		if err != nil {
			return fmt.Errorf("invalid variables: %w", err)
		}
	}

	e, err := setup(cmd, ".", prometheus.NewRegistry())
	if err != nil {
		return err
	}

	defer e.Close()

	exec, err := e.service.NewExecutor()
	if err != nil {
		return err
	}

	resp := exec.Execute(ctx, req)

	indent := !cmd.Bool("compact") && isatty.IsTerminal(os.Stdout.Fd())

	err = writeResponse(os.Stdout, resp, indent)
	if err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		return cli.Exit("", 1)
	}

	return nil
}

// readDocument resolves the document argument: "@path" reads a file, "-" or
// nothing reads stdin, anything else is the document itself.
func readDocument(arg string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(arg[1:]) //nolint:gosec // G304: file path from user input is expected
	case arg == "" || arg == "-":
		data, err = io.ReadAll(stdin)
	default:
		data = []byte(arg)
	}

	if err != nil {
		return "", err
	}

	doc := strings.TrimSpace(string(data))
	if doc == "" {
		return "", ErrNoDocument
	}

	return doc, nil
}

func writeResponse(w io.Writer, resp *graphql.Response, indent bool) error {
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	if indent {
		var buf bytes.Buffer

		err = json.Indent(&buf, out, "", "  ")
		if err != nil {
			return err
		}

		out = buf.Bytes()
	}

	_, err = fmt.Fprintf(w, "%s\n", out)

	return err
}

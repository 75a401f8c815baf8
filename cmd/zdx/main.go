// Command zdx is the CLI entrypoint wiring the provider facade, tool
// orchestrator, agent turn loop, event fan-out, and thread persistence
// into a single-shot "run a turn" invocation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	app := &cli.Command{
		Name:  "zdx",
		Usage: "provider-agnostic coding-agent runtime",
		Commands: []*cli.Command{
			NewRunCommand(),
			NewThreadsCommand(),
			NewShowCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hallway/cmd"
	"github.com/hallway/internal/logging"
)

const (
	version = "0.1.0"
)

func main() {
	logging.Setup(os.Getenv("HALLWAY_ENV"))

	app := &cli.App{
		Name:    "hallway",
		Usage:   "Workspace chat server - realtime message delivery and unread tracking",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "hallway.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

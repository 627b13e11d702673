package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	var configPath string

	app := &cli.App{
		Name:  "tilegraph",
		Usage: "Run tiled tensor task graphs on in-process clusters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       "config.yaml",
				Usage:       "Path to the tilegraph config file",
				EnvVars:     []string{"TILEGRAPH_CONFIG"},
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			initCommand(&configPath),
			infoCommand(&configPath),
			benchCommand(&configPath),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

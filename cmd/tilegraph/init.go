package main

import (
	"fmt"
	"os"

	"github.com/fxnlabs/tilegraph/fixtures"
	"github.com/urfave/cli/v2"
)

func initCommand(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing config file"},
		},
		Action: func(c *cli.Context) error {
			return writeConfig(*configPath, c.Bool("force"))
		},
	}
}

func writeConfig(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if _, err := f.Write(fixtures.ConfigTemplate); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}

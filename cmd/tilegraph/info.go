package main

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/tilegraph/internal/codelet"
	"github.com/fxnlabs/tilegraph/internal/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

func infoCommand(configPath *string) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the available backends and registered codelets",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			var lib *codelet.Library
			return runApp(c.Context, cfg, func() error {
				return printInfo(c.App.Writer, lib)
			}, libraryOption, fx.Populate(&lib))
		},
	}
}

func printInfo(w io.Writer, lib *codelet.Library) error {
	rt := lib.Runtime()
	if _, err := fmt.Fprintln(w, figure.NewFigure("tilegraph", "", true).String()); err != nil {
		return err
	}
	fmt.Fprintf(w, "Session:  %s\n", rt.Session())
	fmt.Fprintf(w, "Backends: %s\n", rt.Available())
	for _, d := range rt.DeviceInfo() {
		fmt.Fprintf(w, "  %s", d.Name)
		if d.TotalMemory > 0 {
			fmt.Fprintf(w, " (%s)", humanize.IBytes(uint64(d.TotalMemory)))
		}
		if d.ComputeCapability != "" {
			fmt.Fprintf(w, " compute %s", d.ComputeCapability)
		}
		fmt.Fprintln(w)
	}
	names := rt.Codelets()
	fmt.Fprintf(w, "Codelets: %d\n", len(names))
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "schedbench",
		Usage: "Exercise the sequence priority queue and worker pool",
		Commands: []*cli.Command{
			RunCommand(),
			DrainCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main is the flashtool command itself.
package main

import (
	"os"

	"github.com/swobbee-dev/spi-memory/cli"
	"github.com/swobbee-dev/spi-memory/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

// Package main is the panoproj command itself.
package main

import (
	"os"

	"go.viam.com/panorama/cli"
	"go.viam.com/panorama/logging"
)

func main() {
	app := cli.NewApp(os.Stdin, os.Stdout)
	app.ErrWriter = os.Stderr
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

// Package cli wires the engine together behind the serialtest command.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "serialtest"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Automated protocol test engine for serial-attached devices",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:  "config",
					Value: "config.json",
					Usage: "Path to the configuration file",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands,
		&cli.Command{
			Name:   "ports",
			Usage:  "List available serial ports",
			Action: app.listPorts,
		},
		&cli.Command{
			Name:   "list",
			Usage:  "List the test cases in the configured suite",
			Action: app.listTests,
		},
		&cli.Command{
			Name:   "run",
			Usage:  "Run the test suite against the connected device",
			Action: app.runSuite,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "port",
					Usage: "Serial port to use (overrides the configured one)",
				},
				&cli.StringSliceFlag{
					Name:  "test",
					Usage: "Run only the named test (repeatable); default is all enabled tests",
				},
				&cli.BoolFlag{
					Name:  "loop",
					Usage: "Restart the pass after each completion until interrupted",
				},
				&cli.IntFlag{
					Name:  "delay",
					Value: -1,
					Usage: "Delay between tests in milliseconds (overrides test_delay_ms)",
				},
				&cli.StringFlag{
					Name:  "listen",
					Usage: "Serve the live WebSocket stream on this address (overrides config)",
				},
			},
		},
	)

	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

package main

import (
	"context"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cscan"
	"github.com/mklimuk/i2cscan/cmd/i2cscan/console"
)

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive scanner console, sweeps on demand",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		cfg, err := scanConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		bus, cleanup, err := openBus(cfg)
		if err != nil {
			return console.Exit(1, "bus initialization error: %s", console.Red(err))
		}
		defer cleanup()

		reporter := i2cscan.NewConsoleReporter(os.Stdout)
		reporter.Banner()
		scanner := i2cscan.NewScanner(bus, i2cscan.WithReporter(reporter))
		for {
			line, err := console.Prompt("i2cscan> ")
			if err != nil {
				// EOF or interrupt ends the session
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
			case "scan":
				reporter.SweepStarted()
				result, err := scanner.Sweep(ctx)
				if err != nil {
					console.Errorf("sweep error: %s", console.Red(err))
					continue
				}
				reporter.SweepCompleted(result)
			case "help":
				console.Print("commands: scan, help, quit")
			case "quit", "exit":
				console.PInfof(console.PictoFinish, "bye")
				return nil
			default:
				console.Warnf("unknown command %q, try help", strings.TrimSpace(line))
			}
		}
	},
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/i2cscan"
	"github.com/mklimuk/i2cscan/adapter"
	"github.com/mklimuk/i2cscan/cmd/i2cscan/console"
	"github.com/mklimuk/i2cscan/i2c"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Value:   i2cscan.AdapterPeriph,
		Usage:   "bus attachment: periph, mcp2221, gobot or serial",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Value:   "/dev/i2c-1",
	},
	&cli.IntFlag{Name: "scl", Value: 22, Usage: "clock pin"},
	&cli.IntFlag{Name: "sda", Value: 21, Usage: "data pin"},
	&cli.IntFlag{Name: "freq", Value: 100_000, Usage: "bus clock frequency in Hz"},
	&cli.StringFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Value:   "/dev/ttyUSB0",
		Usage:   "serial port of the probe firmware (serial adapter)",
	},
	&cli.IntFlag{
		Name:    "bus",
		Aliases: []string{"b"},
		Value:   -1,
		Usage:   "gobot bus number (gobot adapter)",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "yaml config file, flags set explicitly take precedence",
	},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
}

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "sweep the bus address space, print findings, repeat",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Value:   5 * time.Second,
			Usage:   "pause between sweeps",
		},
		&cli.BoolFlag{Name: "once", Usage: "perform a single sweep and exit"},
	}, busFlags...),
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

		interval := cfg.Interval()
		if c.IsSet("interval") {
			interval = c.Duration("interval")
		}
		reporter := i2cscan.NewConsoleReporter(os.Stdout)
		reporter.Banner()
		scanner := i2cscan.NewScanner(bus,
			i2cscan.WithReporter(reporter),
			i2cscan.WithInterval(interval),
		)
		if c.Bool("once") {
			reporter.SweepStarted()
			result, err := scanner.Sweep(ctx)
			if err != nil {
				return console.Exit(1, "sweep error: %s", console.Red(err))
			}
			reporter.SweepCompleted(result)
			return nil
		}
		err = scanner.Run(ctx)
		if err != nil {
			return console.Exit(1, "scanner stopped: %s", console.Red(err))
		}
		return nil
	},
}

func scanConfig(c *cli.Context) (i2cscan.Config, error) {
	cfg := i2cscan.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = i2cscan.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
	}
	if c.IsSet("adapter") || cfg.Adapter == "" {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("scl") {
		cfg.SCLPin = c.Int("scl")
	}
	if c.IsSet("sda") {
		cfg.SDAPin = c.Int("sda")
	}
	if c.IsSet("freq") {
		cfg.FrequencyHz = c.Int("freq")
	}
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("bus") {
		cfg.GobotBus = c.Int("bus")
	}
	return cfg, nil
}

func openBus(cfg i2cscan.Config) (i2cscan.Prober, func(), error) {
	switch cfg.Adapter {
	case i2cscan.AdapterPeriph:
		bus, err := i2c.NewGenericBus(i2c.Config{
			Device:    cfg.Device,
			SCL:       cfg.SCLPin,
			SDA:       cfg.SDAPin,
			Frequency: physic.Frequency(cfg.FrequencyHz) * physic.Hertz,
		})
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil
	case i2cscan.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		err := bridge.Init()
		if err != nil {
			return nil, nil, err
		}
		return bridge, func() { _ = bridge.Close() }, nil
	case i2cscan.AdapterSerial:
		bridge, err := adapter.NewSerialBridge(cfg.Port, 0)
		if err != nil {
			return nil, nil, err
		}
		return bridge, func() { _ = bridge.Close() }, nil
	case i2cscan.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.I2cBusAdaptor.Connect()
		if err != nil {
			return nil, nil, err
		}
		bus := adapter.NewGobotBus(npi, cfg.GobotBus)
		return bus, func() { _ = npi.I2cBusAdaptor.Finalize() }, nil
	default:
		return nil, nil, console.Exit(1, "unknown adapter %s", console.Red(cfg.Adapter))
	}
}
